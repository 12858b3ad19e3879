package test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/indexdata/patronlink/app"
	"github.com/jackc/pgx/v5/pgtype"
)

func GetNow() pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  time.Now(),
		Valid: true,
	}
}

func WaitForPredicateToBeTrue(predicate func() bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond) // Check every 20ms
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if predicate() {
				return true
			}
		}
	}
}

func StartApp(ctx context.Context) app.Context {
	appContext, err := app.Init(ctx)
	Expect(err, "failed to init app")
	go func() {
		err := app.StartServer(appContext)
		Expect(err, "failed to start server")
	}()
	return appContext
}

func Expect(err error, message string) {
	if err != nil {
		panic(fmt.Sprintf(message+" Errror : %s", err))
	}
}

// GetFreePort asks the kernel for a free open port that is ready to use.
func GetFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	// release for now so it can be bound by the actual server
	// a more robust solution would be to bind the server to the port and close it here
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func WaitForServiceUp(port int) {
	if !WaitForPredicateToBeTrue(func() bool {
		resp, err := http.Get("http://localhost:" + strconv.Itoa(port) + "/healthz")
		if err != nil {
			return false
		}
		return resp.StatusCode == http.StatusOK
	}) {
		panic("failed to start service")
	} else {
		fmt.Println("Service up")
	}
}

func CreatePgText(value string) pgtype.Text {
	textValue := pgtype.Text{
		String: value,
		Valid:  true,
	}
	return textValue
}
