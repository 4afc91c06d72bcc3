package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bookpoint/internal/client"
	"bookpoint/internal/models"

	"github.com/redis/go-redis/v9"
)

const usage = `usage: bookctl [flags] <command> [args]

commands:
  services
  staff [service_id]
  extras <service_id>
  slots <service_id> <staff_id> <date> [extra_ids]
  book <service_id> <staff_id> <date> <start> <end> <party_size> <first> <last> <email> <phone> [extra_ids]
  get <code>
  status <code> <status>
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL   = flag.String("url", envOr("BOOKPOINT_URL", "http://localhost:8080"), "bookpoint HTTP API address")
		apiKey    = flag.String("key", os.Getenv("BOOKPOINT_API_KEY"), "API key")
		apiExtra  = flag.String("extra", os.Getenv("BOOKPOINT_API_EXTRA"), "API extra header value")
		redisAddr = flag.String("redis", "", "redis address for caching catalog reads")
		timeout   = flag.Duration("timeout", 15*time.Second, "overall request timeout")
	)
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage); flag.PrintDefaults() }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("command is required")
	}

	c := client.New(*baseURL, *apiKey, *apiExtra)
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		c.UseRedisCache(rdb, 5*time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := dispatch(ctx, c, args[0], args[1:])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string) (any, error) {
	switch cmd {
	case "services":
		return c.Services(ctx)
	case "staff":
		var serviceID int64
		if len(args) > 0 {
			id, err := parseID(args[0])
			if err != nil {
				return nil, err
			}
			serviceID = id
		}
		return c.Staff(ctx, serviceID)
	case "extras":
		if err := need(args, 1); err != nil {
			return nil, err
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return c.Extras(ctx, id)
	case "slots":
		if err := need(args, 3); err != nil {
			return nil, err
		}
		ids, err := parseIDs(args[:2])
		if err != nil {
			return nil, err
		}
		var extras []int64
		if len(args) > 3 {
			if extras, err = parseIDs(strings.Split(args[3], ",")); err != nil {
				return nil, err
			}
		}
		return c.TimeSlots(ctx, ids[0], ids[1], args[2], extras)
	case "book":
		return book(ctx, c, args)
	case "get":
		if err := need(args, 1); err != nil {
			return nil, err
		}
		return c.Booking(ctx, args[0])
	case "status":
		if err := need(args, 2); err != nil {
			return nil, err
		}
		return c.SetStatus(ctx, args[0], args[1])
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func book(ctx context.Context, c *client.Client, args []string) (any, error) {
	if err := need(args, 10); err != nil {
		return nil, err
	}
	ids, err := parseIDs(args[:2])
	if err != nil {
		return nil, err
	}
	party, err := strconv.Atoi(args[5])
	if err != nil {
		return nil, fmt.Errorf("invalid party size %q", args[5])
	}

	req := client.BookingRequest{
		ServiceID: ids[0],
		StaffID:   ids[1],
		Date:      args[2],
		StartTime: args[3],
		EndTime:   args[4],
		PartySize: party,
		Customer: models.Customer{
			FirstName: args[6],
			LastName:  args[7],
			Email:     args[8],
			Phone:     args[9],
		},
	}
	if len(args) > 10 {
		if req.Extras, err = parseIDs(strings.Split(args[10], ",")); err != nil {
			return nil, err
		}
	}
	return c.Book(ctx, req)
}

func need(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
