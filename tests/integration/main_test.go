package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
)

var (
	testDB *TestDB
	server *TestServer
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("skipping integration tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		// No Docker available; these tests cannot run here
		fmt.Printf("skipping integration tests: %v\n", err)
		os.Exit(0)
	}
	testDB = db
	server = NewTestServer(db.DB)

	code := m.Run()

	server.Close()
	testDB.Teardown(ctx)
	os.Exit(code)
}
