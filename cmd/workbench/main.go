package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/api"
	"github.com/rflorenc/field-migration-workbench/internal/config"
	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("field-migration-workbench %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		}
	}

	cfg := config.Parse()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q\n", cfg.LogLevel)
		os.Exit(1)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	server := &api.Server{
		Connections: models.NewConnectionStore(),
		Jobs:        models.NewJobStore(),
		Log:         log,
		CacheTTL:    cfg.CacheTTL,
	}

	// Load pre-configured connections from config file
	for _, cc := range cfg.Connections {
		conn := &models.Connection{
			Name:     cc.Name,
			Scheme:   cc.Scheme,
			Host:     cc.Host,
			Port:     cc.Port,
			OrgID:    cc.OrgID,
			APIKey:   cc.APIKey,
			Insecure: cc.Insecure,
		}
		if conn.Scheme == "" {
			conn.Scheme = "https"
		}
		if conn.Port == 0 {
			if conn.Scheme == "https" {
				conn.Port = 443
			} else {
				conn.Port = 80
			}
		}
		server.Connections.Create(conn)
		log.Info().Str("name", conn.Name).Str("url", conn.BaseURL()).Msg("connection loaded")
	}

	if cfg.Demo {
		demo := seedDemoStore()
		server.NewStore = func(*models.Connection, zerolog.Logger) store.RecordStore { return demo }
		server.Connections.Create(&models.Connection{
			Name: "demo", Scheme: "http", Host: "localhost", Port: 80, OrgID: "demo",
		})
		log.Info().Msg("demo mode: using seeded in-memory record store")
	}

	router := api.NewRouter(server)
	log.Info().Str("listen", cfg.Listen).Str("version", version).Msg("workbench started")
	if err := http.ListenAndServe(cfg.Listen, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// seedDemoStore builds a small in-memory org for trying the workbench
// without a live record store.
func seedDemoStore() *store.Memory {
	m := store.NewMemory()
	m.AddField(models.FieldMetadata{Name: "Category", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "LegacyTag", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "Interests", Kind: models.KindCustom, DataType: models.TypeEnum, MultiValue: true})
	m.AddField(models.FieldMetadata{Name: "volunteer-2023", Kind: models.KindCustom, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "volunteer-2024", Kind: models.KindCustom, DataType: models.TypeText})

	m.AddRecord("1001", map[string]interface{}{"LegacyTag": "Volunteer", "Category": ""})
	m.AddRecord("1002", map[string]interface{}{"LegacyTag": "Donor", "Category": "Member"})
	m.AddRecord("1003", map[string]interface{}{"Category": ""})
	m.SetCustom("1001", "volunteer-2023", "yes")
	m.SetCustom("1002", "volunteer-2024", "yes")
	return m
}
