package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zhaobenny/datatop/internal/sandbox"
	"github.com/zhaobenny/datatop/server/internal/database"
	"golang.org/x/time/rate"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}

	// Load configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "./datatop-sandbox.db")
	iccid := os.Getenv("SANDBOX_ICCID")
	password := os.Getenv("SANDBOX_PASSWORD")

	// Open database
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	if iccid != "" && password != "" {
		if err := seedAccount(db, iccid, password); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed account")
		}
		if used := os.Getenv("SANDBOX_USED_MIB"); used != "" {
			if err := setUsage(db, iccid, used); err != nil {
				log.Fatal().Err(err).Msg("Failed to set plan usage")
			}
		}
	}

	// Setup session manager with SQLite store
	sessionMgr := scs.New()
	sessionMgr.Store = sqlite3store.New(db.DB)
	sessionMgr.Lifetime = 30 * time.Minute
	sessionMgr.Cookie.Secure = false // Set to true in production with HTTPS
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode

	srv, err := sandbox.New(sandbox.Options{
		Accounts:     db,
		DeviceICCID:  iccid,
		Key:          os.Getenv("SANDBOX_KEY"),
		Salt:         os.Getenv("SANDBOX_SALT"),
		Sessions:     sessionMgr,
		LoginLimiter: sandbox.NewIPRateLimiter(rate.Every(6*time.Second), 5),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sandbox")
	}

	// Start server
	addr := ":" + port
	log.Info().Str("addr", addr).Str("db", dbPath).Str("iccid", iccid).Msg("Starting datatop-sandbox")

	server := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// seedAccount stores the configured card, keeping an existing plan or
// starting a fresh 30 day package
func seedAccount(db *database.DB, iccid, password string) error {
	hash, err := sandbox.HashPassword(password)
	if err != nil {
		return err
	}

	existing, err := db.GetAccount(iccid)
	if err != nil {
		return err
	}

	account := &sandbox.Account{ICCID: iccid, PasswordHash: hash}
	if existing != nil && existing.Plan != nil {
		account.Plan = existing.Plan
	} else {
		account.Plan = &sandbox.Plan{
			Period:     30,
			Expiration: time.Now().Add(20 * 24 * time.Hour).Truncate(time.Minute),
			TotalMiB:   30720,
			UsedMiB:    6554,
		}
	}
	return db.PutAccount(account)
}

// setUsage overwrites the used counter of the seeded plan with value, in MiB
func setUsage(db *database.DB, iccid, value string) error {
	used, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid SANDBOX_USED_MIB %q: %w", value, err)
	}
	return db.UpdateUsage(iccid, used)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
