package main

import (
	"fmt"
	"log"
	"os"

	"ladybug/internal/server"
)

func main() {
	dbPath := os.Getenv("LB_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/ladybug.db"
	}

	db, err := server.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name;`)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	fmt.Println("Tables:")
	for rows.Next() {
		var name string
		_ = rows.Scan(&name)
		fmt.Println(" -", name)
	}

	var accounts, servers, active int
	_ = db.QueryRow(`SELECT COUNT(*) FROM accounts;`).Scan(&accounts)
	_ = db.QueryRow(`SELECT COUNT(*) FROM servers;`).Scan(&servers)
	_ = db.QueryRow(`SELECT COUNT(*) FROM servers WHERE status='active';`).Scan(&active)
	fmt.Println("Accounts:", accounts)
	fmt.Printf("Servers: %d (%d active)\n", servers, active)

	// Cross-check the one-server-per-account invariant.
	var dup int
	_ = db.QueryRow(`SELECT COUNT(*) FROM (
		SELECT owner_id FROM servers WHERE status='active' GROUP BY owner_id HAVING COUNT(*) > 1
	);`).Scan(&dup)
	if dup > 0 {
		fmt.Printf("WARNING: %d accounts own more than one active server\n", dup)
	}
}
