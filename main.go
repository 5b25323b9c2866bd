package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/MartinBspheroid/gantt-sync/internal/api"
	"github.com/MartinBspheroid/gantt-sync/internal/repository"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	gitlabToken := os.Getenv("GITLAB_TOKEN")
	if gitlabToken == "" {
		log.Fatal("GITLAB_TOKEN not configured")
	}
	gitlabBaseUrl := os.Getenv("GITLAB_BASE_URL")

	dbPath := os.Getenv("GANTT_DB")
	if dbPath == "" {
		dbPath = "./gantt.db"
	}

	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatal("Error trying to initialize DB:", err)
	}
	defer db.Close()

	fmt.Println("✅ Database initialized!")

	router := api.SetupRouter(db, gitlabBaseUrl, gitlabToken)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	fmt.Printf("🚀 Gantt sync server running on http://localhost%s\n", addr)
	fmt.Println("📝 Main endpoints:")
	fmt.Println("   GET  /projects/{id}/gantt - Tasks, links and sync state")
	fmt.Println("   POST /projects/{id}/sync - Force a resync")
	fmt.Println("   PUT  /projects/{id}/tasks/{taskId}/drag - Workday-preserving drag")
	fmt.Println("   POST /projects/{id}/tasks/{taskId}/cascade - Cascade move")

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal("Error trying to start server:", err)
	}
}
