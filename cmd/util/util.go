package util

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple"
	"github.com/ValentinKolb/docKV/lib/logging"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var (
	log  = logger.GetLogger("cli")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupDBFlags adds the database flags to a command
func SetupDBFlags(cmd *cobra.Command) {
	key := "data-dir"
	cmd.PersistentFlags().String(key, "data", WrapString("Directory holding the database files (bolt engine)"))

	key = "db"
	cmd.PersistentFlags().String(key, store.DefaultDBName, WrapString("Name of the database"))

	key = "db-version"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Version to open the database with. 0 opens the current version"))

	key = "engine"
	cmd.PersistentFlags().String(key, string(db.ImplBolt), WrapString("Storage engine (bolt, maple). maple keeps everything in memory and forgets it when the command exits"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from .env files and environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dockv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper and applies the log level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return logging.InitLoggers(viper.GetString("log-level"))
}

// --------------------------------------------------------------------------
// Engine & Connection
// --------------------------------------------------------------------------

// NewEngine creates the configured storage engine
func NewEngine() (db.Engine, error) {
	switch impl := db.Implementation(viper.GetString("engine")); impl {
	case db.ImplBolt:
		return bolt.NewBoltEngine(viper.GetString("data-dir"))
	case db.ImplMaple:
		return maple.NewMapleEngine(), nil
	default:
		return nil, fmt.Errorf("invalid engine %s (expected bolt or maple)", impl)
	}
}

// DBName returns the configured database name
func DBName() string {
	return viper.GetString("db")
}

// Connect opens the configured database. The returned function closes the
// connection and logs a failure.
func Connect(ctx context.Context) (*store.Conn, func(), error) {
	engine, err := NewEngine()
	if err != nil {
		return nil, nil, err
	}

	var conn *store.Conn
	if version := viper.GetUint64("db-version"); version == 0 {
		conn, err = store.ConnectLatest(ctx, engine, DBName())
	} else {
		conn, err = store.Connect(ctx, engine, DBName(), version, nil)
	}
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("connected to %s (version %d)", conn.Name(), conn.Version())

	return conn, func() {
		if _, err := store.Close(conn); err != nil {
			log.Errorf("closing %s: %v", conn.Name(), err)
		}
	}, nil
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

// ParseDocument parses a JSON object given on the command line
func ParseDocument(raw string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("record must be a JSON object: %s", raw)
	}
	return doc, nil
}
