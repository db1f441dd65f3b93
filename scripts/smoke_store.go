//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/db"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeLibSQL opens the embedded libsql driver, applies migrations and
// round-trips a conversation.
func RunSmokeLibSQL() {
	fmt.Println("Smoke test: libsql conversation store")
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	ctx := context.Background()
	dbconn, err := db.Connect(ctx, db.BackendLibSQL, "file:"+tmp, zerolog.Nop())
	must(err, "connect")
	defer dbconn.Close()
	fmt.Println("OK: connect + migrations")

	// JSON1 is needed by ad-hoc history queries
	var jsonRes string
	err = dbconn.QueryRow("SELECT json_extract('{\"user\":\"value\"}', '$.user')").Scan(&jsonRes)
	must(err, "JSON1 query")
	if jsonRes != "value" {
		log.Fatalf("JSON1 returned unexpected: %v", jsonRes)
	}
	fmt.Println("OK: JSON1")

	store := adapters.NewLibSQLConversationStore(dbconn)
	now := time.Now()
	must(store.Append(ctx, "smoke-user",
		ports.Turn{Role: ports.RoleUser, Text: "What should I wear?", CreatedAt: now},
		ports.Turn{Role: ports.RoleModel, Text: "Linen.", CreatedAt: now},
	), "append")

	turns, err := store.Load(ctx, "smoke-user")
	must(err, "load")
	if len(turns) != 2 || turns[1].Text != "Linen." {
		log.Fatalf("unexpected history: %+v", turns)
	}
	fmt.Println("OK: append + load")

	// Migrations are idempotent
	must(db.Migrate(dbconn), "re-migrate")
	fmt.Println("Smoke checks completed.")
}
