package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Development helper that mints HS256 tokens carrying the claims the account
// API middleware expects (username, email, is_staff).
func main() {
	secret := flag.String("secret", "very-secure-jwt-secret", "Secret key for signing the token")
	username := flag.String("username", "", "Username claim (required)")
	email := flag.String("email", "", "Email claim")
	isStaff := flag.Bool("staff", false, "Mark the token holder as staff")
	expiry := flag.Duration("expiry", 30*time.Minute, "Token expiry duration (e.g., 30m, 1h, 24h)")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "Error: -username is required")
		os.Exit(1)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"username": *username,
		"email":    *email,
		"is_staff": *isStaff,
		"iat":      now.Unix(),
		"exp":      now.Add(*expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(tokenStr)
}
