package db

import (
	"database/sql"
	"fmt"
	"log"

	"echoheritage/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
// The fingerprint corpus and system_controls tables are migrated separately
// through GORM (see AutoMigrateModels).
func InitDB() error {
	if err := createUsersTable(); err != nil {
		return err
	}
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createFusedTracksTable(); err != nil {
		return err
	}
	if err := createModernTracksTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createUsersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		country VARCHAR(100),
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		email_token VARCHAR(64),
		last_active TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		sound_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		performer VARCHAR(255),
		category VARCHAR(100),
		community VARCHAR(255),
		region VARCHAR(255),
		context TEXT,
		country VARCHAR(100),
		description TEXT,
		contributor VARCHAR(255),
		sound_track_url VARCHAR(767),
		album_file_url VARCHAR(767),
		isapproved BOOLEAN NOT NULL DEFAULT FALSE,
		fusion_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT uq_tracks_sound_id UNIQUE (sound_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createFusedTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS fused_tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		sound_id VARCHAR(64) NOT NULL,
		heritage_sound VARCHAR(255),
		modern_sound VARCHAR(255),
		user_mail VARCHAR(255),
		fusedtrack_url VARCHAR(767),
		community VARCHAR(255),
		gate FLOAT,
		clarity FLOAT,
		strength FLOAT,
		temp FLOAT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_fused_sound_id (sound_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create fused_tracks table: %w", err)
	}
	return nil
}

func createModernTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS modern_tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		category VARCHAR(100) NOT NULL,
		rhythm_style VARCHAR(100),
		bpm INT NOT NULL DEFAULT 0,
		mood VARCHAR(100),
		modernaudio_url VARCHAR(767),
		isapproved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create modern_tracks table: %w", err)
	}
	return nil
}
