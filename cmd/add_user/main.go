package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"campus-portal/app/config"
	"campus-portal/app/database"
	"campus-portal/app/logging"
	"campus-portal/app/models"
	"campus-portal/app/routes/auth"
)

func main() {
	email := flag.String("email", "", "login email")
	first := flag.String("first", "", "first name")
	last := flag.String("last", "", "last name")
	password := flag.String("password", "", "initial password")
	roles := flag.String("roles", models.RoleProctor, "comma-separated roles to grant")
	flag.Parse()

	cfg := config.Load()
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: add_user -email EMAIL -password PASSWORD [-first NAME] [-last NAME] [-roles proctor,instructor]")
		os.Exit(2)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		os.Exit(1)
	}
	user := &models.User{
		FirstName: *first,
		LastName:  *last,
		Email:     strings.ToLower(strings.TrimSpace(*email)),
		Password:  hash,
	}

	var grant []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			grant = append(grant, r)
		}
	}
	if err := database.CreateUser(context.Background(), db, user, grant...); err != nil {
		slog.Error("failed to create user", "email", user.Email, "error", err)
		os.Exit(1)
	}

	fmt.Printf("User created successfully: %s %s (%s) roles=%s\n", user.FirstName, user.LastName, user.Email, strings.Join(grant, ","))
}
