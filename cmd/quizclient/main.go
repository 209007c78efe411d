package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gokatarajesh/quiz-session/internal/app"
	"github.com/gokatarajesh/quiz-session/internal/config"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		envFile := os.Getenv("QUIZ_ENV_FILE")
		if envFile == "" {
			envFile = "configs/.env"
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appCtx := context.Background()
	instance, err := app.New(appCtx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("failed to build app: %v", err)
	}

	if err := instance.Run(appCtx, os.Stdin); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
