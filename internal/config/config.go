package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

const EnvPrefix = "TUGQUIZ"

const (
	TransportRelay  = "relay"
	TransportDirect = "direct"
	TransportDoc    = "doc"
)

type Config struct {
	// server
	Bind            string
	Port            int
	PublicURL       string
	Origins         []string
	RoomIdleTimeout time.Duration

	// game rules
	Mode        string
	RoundsToWin int
	AutoStart   bool

	// client
	Server        string
	Transport     string
	PeerAddr      string
	Database      string
	JoinTimeout   time.Duration
	SessionFile   string
	Questions     string
	CountdownTick time.Duration
	AnswerDelay   time.Duration
	Name          string
	Room          string

	EnvFile string
	Verbose bool
}

func Default() Config {
	return Config{
		Bind:            "0.0.0.0",
		Port:            3000,
		RoomIdleTimeout: 30 * time.Minute,
		Mode:            string(engine.ModeSingle),
		RoundsToWin:     3,
		Server:          "ws://localhost:3000/ws",
		Transport:       TransportRelay,
		PeerAddr:        "127.0.0.1:3001",
		JoinTimeout:     10 * time.Second,
		SessionFile:     ".tugquiz-session",
		CountdownTick:   time.Second,
		AnswerDelay:     time.Second,
		EnvFile:         ".env",
	}
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Rules turns the game settings into engine rules.
func (c *Config) Rules() engine.Rules {
	r := engine.DefaultRules()
	r.Mode = engine.Mode(c.Mode)
	r.RoundsToWin = c.RoundsToWin
	return r
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port))
	}
	if rerr := c.Rules().Validate(); rerr != nil {
		err = multierr.Append(err, rerr)
	}
	switch c.Transport {
	case TransportRelay, TransportDirect, TransportDoc:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown transport %q (want relay, direct or doc)", c.Transport))
	}
	if c.Transport == TransportDirect {
		if _, _, perr := net.SplitHostPort(c.PeerAddr); perr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid --peer-addr %q: %w", c.PeerAddr, perr))
		}
	}
	if c.Transport == TransportDoc && c.Database == "" {
		err = multierr.Append(err, errors.New("--transport doc needs --database shared by both players"))
	}
	if c.JoinTimeout <= 0 {
		err = multierr.Append(err, errors.New("--join-timeout must be positive"))
	}
	if c.CountdownTick <= 0 || c.AnswerDelay < 0 {
		err = multierr.Append(err, errors.New("--countdown-tick must be positive and --answer-delay not negative"))
	}
	if c.RoomIdleTimeout < 0 {
		err = multierr.Append(err, errors.New("--room-idle-timeout must not be negative"))
	}
	return err
}

func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func addCommonFlags(fs *pflag.FlagSet, c *Config) {
	fs.SetNormalizeFunc(normalize)

	fs.StringVar(&c.Mode, "mode", c.Mode, "game mode, single or rounds (env: TUGQUIZ_MODE)")
	fs.IntVar(&c.RoundsToWin, "rounds-to-win", c.RoundsToWin, "rounds needed to win in rounds mode (env: TUGQUIZ_ROUNDS_TO_WIN)")
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "dotenv file loaded before reading the environment")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "display additional output (env: TUGQUIZ_VERBOSE)")
}

func AddServerFlags(fs *pflag.FlagSet, c *Config) {
	addCommonFlags(fs, c)

	fs.StringVarP(&c.Bind, "bind", "b", c.Bind, "address to bind to (env: TUGQUIZ_BIND)")
	fs.IntVarP(&c.Port, "port", "p", c.Port, "port to listen on (env: TUGQUIZ_PORT)")
	fs.StringVar(&c.PublicURL, "public-url", c.PublicURL, "base URL used in invite links (env: TUGQUIZ_PUBLIC_URL)")
	fs.StringSliceVar(&c.Origins, "origins", c.Origins, "allowed websocket origins, empty allows any (env: TUGQUIZ_ORIGINS)")
	fs.DurationVar(&c.RoomIdleTimeout, "room-idle-timeout", c.RoomIdleTimeout, "time before idle rooms are closed, 0 disables (env: TUGQUIZ_ROOM_IDLE_TIMEOUT)")
	fs.BoolVar(&c.AutoStart, "auto-start", c.AutoStart, "start the game when the second player joins (env: TUGQUIZ_AUTO_START)")
}

func AddClientFlags(fs *pflag.FlagSet, c *Config) {
	addCommonFlags(fs, c)

	fs.StringVar(&c.Server, "server", c.Server, "relay websocket URL (env: TUGQUIZ_SERVER)")
	fs.StringVarP(&c.Transport, "transport", "t", c.Transport, "relay, direct or doc (env: TUGQUIZ_TRANSPORT)")
	fs.StringVar(&c.PeerAddr, "peer-addr", c.PeerAddr, "host:port of the direct peer link (env: TUGQUIZ_PEER_ADDR)")
	fs.StringVar(&c.Database, "database", c.Database, "postgres DSN shared by both players, required by the doc transport (env: TUGQUIZ_DATABASE)")
	fs.DurationVar(&c.JoinTimeout, "join-timeout", c.JoinTimeout, "how long to wait for a join to be accepted (env: TUGQUIZ_JOIN_TIMEOUT)")
	fs.StringVar(&c.SessionFile, "session-file", c.SessionFile, "file holding the session id used to rejoin (env: TUGQUIZ_SESSION_FILE)")
	fs.StringVar(&c.Questions, "questions", c.Questions, "JSON question bank, empty uses the built-in one (env: TUGQUIZ_QUESTIONS)")
	fs.DurationVar(&c.CountdownTick, "countdown-tick", c.CountdownTick, "length of one countdown step (env: TUGQUIZ_COUNTDOWN_TICK)")
	fs.DurationVar(&c.AnswerDelay, "answer-delay", c.AnswerDelay, "pause before the next question (env: TUGQUIZ_ANSWER_DELAY)")
	fs.BoolVar(&c.AutoStart, "auto-start", c.AutoStart, "start the countdown as soon as two players are present (env: TUGQUIZ_AUTO_START)")
	fs.StringVarP(&c.Name, "name", "n", c.Name, "display name (env: TUGQUIZ_NAME)")
	fs.StringVarP(&c.Room, "room", "r", c.Room, "room code to join, empty creates a room (env: TUGQUIZ_ROOM)")
}

// LoadEnv reads the dotenv file, if any, and fills every flag the user did not
// set on the command line from TUGQUIZ_* variables.
func LoadEnv(fs *pflag.FlagSet, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if serr := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); serr != nil {
				err = multierr.Append(err, fmt.Errorf("env %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), serr))
			}
		}
	})
	return err
}
