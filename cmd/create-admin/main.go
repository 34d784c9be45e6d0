package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/database"
	"github.com/roadready/theory-backend/internal/logger"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const minPasswordLength = 8

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	color.Cyan("=== Create Administrator ===")
	fmt.Println("An existing account with the same email is promoted and its password reset.")

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		color.Red("Error: Email is required")
		os.Exit(1)
	}

	existing, err := userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Fatal().Err(err).Msg("Failed to look up user")
	}

	name := ""
	if existing == nil {
		fmt.Print("Enter Name: ")
		name, _ = reader.ReadString('\n')
		name = strings.TrimSpace(name)
		if name == "" {
			color.Red("Error: Name is required")
			os.Exit(1)
		}
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		color.Red("Error reading password")
		os.Exit(1)
	}
	password := string(bytePassword)
	if len(password) < minPasswordLength {
		color.Red("Error: Password must be at least %d characters", minPasswordLength)
		os.Exit(1)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	if existing != nil {
		if err := userRepo.UpdatePassword(ctx, existing.ID, string(hashedPassword)); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset password")
		}
		if err := userRepo.SetAdmin(ctx, existing.ID, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to grant admin")
		}
		color.Green("\nSuccess! '%s' (%s) is now an administrator (ID %d)", existing.Name, existing.Email, existing.ID)
		return
	}

	admin := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashedPassword),
		IsAdmin:      true,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	color.Green("\nSuccess! Administrator '%s' (%s) created with ID %d", admin.Name, admin.Email, admin.ID)
}
