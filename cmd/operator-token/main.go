package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neetpg/battle-backend/internal/service"
	"golang.org/x/term"
)

// Mints an operator token for the cancel and active-battle routes.
func main() {
	var (
		name   string
		expiry time.Duration
	)
	flag.StringVar(&name, "name", "", "Operator name stored as the token subject")
	flag.DurationVar(&expiry, "expiry", 24*time.Hour, "Token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	if name == "" {
		fmt.Print("Enter Operator Name: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading name")
			os.Exit(1)
		}
		name = strings.TrimSpace(line)
	}
	if name == "" {
		fmt.Fprintln(os.Stderr, "Operator name is required")
		os.Exit(1)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Print("Enter JWT Secret: ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after secret input
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		secret = string(b)
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT secret is required")
		os.Exit(1)
	}

	token, err := service.NewAuthService(secret, expiry).GenerateToken(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
