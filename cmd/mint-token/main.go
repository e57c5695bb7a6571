// Command mint-token prints a teacher API token for the given teacher id.
// Useful for development and for wiring an external identity provider that
// shares JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/horoquiz/horoquiz-backend/internal/config"
	"github.com/horoquiz/horoquiz-backend/internal/service"
)

func main() {
	var teacherID int64
	flag.Int64Var(&teacherID, "teacher", 0, "Teacher ID to mint a token for")
	flag.Parse()

	if teacherID <= 0 {
		log.Fatal("usage: mint-token -teacher <id>")
	}

	cfg := config.Load()
	authService := service.NewAuthService(cfg)

	token, err := authService.GenerateTeacherToken(teacherID)
	if err != nil {
		log.Fatalf("Token generation failed: %v", err)
	}

	fmt.Println(token)
}
