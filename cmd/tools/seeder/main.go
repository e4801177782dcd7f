// cmd/tools/seeder/main.go
//
// Loads directory fixtures (recipients, events, candidates) into Postgres
// for local development and demos.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"coachreach/internal/common/config"
	"coachreach/internal/common/database"
	"coachreach/internal/models"
)

type fixture struct {
	Recipients []models.Recipient `json:"recipients"`
	Events     []eventFixture     `json:"events"`
	Candidates []candidateFixture `json:"candidates"`
}

type eventFixture struct {
	models.EventProfile
	CandidateIDs []string `json:"candidateIds"`
}

type candidateFixture struct {
	models.Candidate
}

func main() {
	fixturePath := flag.String("fixture", "configs/seed.json", "Path to the seed fixture file")
	truncate := flag.Bool("truncate", false, "Truncate directory tables before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal("config load failed: %v", err)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fatal("postgres connect failed: %v", err)
	}
	defer pg.Close()

	raw, err := os.ReadFile(*fixturePath)
	if err != nil {
		fatal("fixture read failed: %v", err)
	}
	var fix fixture
	if err := json.Unmarshal(raw, &fix); err != nil {
		fatal("fixture parse failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *truncate {
		if _, err := pg.DB.ExecContext(ctx, `
			TRUNCATE recipients, events, candidates, candidate_availability, event_candidate_pool CASCADE`); err != nil {
			fatal("truncate failed: %v", err)
		}
		fmt.Println("directory tables truncated")
	}

	for _, r := range fix.Recipients {
		if _, err := pg.DB.ExecContext(ctx, `
			INSERT INTO recipients (id, display_name, channel, address)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET display_name = $2, channel = $3, address = $4`,
			r.ID, r.DisplayName, string(r.Channel), r.Address); err != nil {
			fatal("recipient %s: %v", r.ID, err)
		}
	}
	fmt.Printf("seeded %d recipients\n", len(fix.Recipients))

	for _, c := range fix.Candidates {
		if _, err := pg.DB.ExecContext(ctx, `
			INSERT INTO candidates (id, display_name, specialties, ratings, location)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET display_name = $2, specialties = $3, ratings = $4, location = $5`,
			c.ID, c.DisplayName, pq.Array(c.Specialties), pq.Array(c.Ratings), c.Location); err != nil {
			fatal("candidate %s: %v", c.ID, err)
		}
		for _, w := range c.Availability {
			if _, err := pg.DB.ExecContext(ctx, `
				INSERT INTO candidate_availability (candidate_id, start_at, end_at)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`,
				c.ID, w.Start, w.End); err != nil {
				fatal("availability for %s: %v", c.ID, err)
			}
		}
	}
	fmt.Printf("seeded %d candidates\n", len(fix.Candidates))

	for _, e := range fix.Events {
		if _, err := pg.DB.ExecContext(ctx, `
			INSERT INTO events (id, name, required_skills, start_at, end_at, location)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET name = $2, required_skills = $3, start_at = $4, end_at = $5, location = $6`,
			e.ID, e.Name, pq.Array(e.RequiredSkills), e.Start, e.End, e.Location); err != nil {
			fatal("event %s: %v", e.ID, err)
		}
		for _, candidateID := range e.CandidateIDs {
			if _, err := pg.DB.ExecContext(ctx, `
				INSERT INTO event_candidate_pool (event_id, candidate_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING`,
				e.ID, candidateID); err != nil {
				fatal("pool entry %s/%s: %v", e.ID, candidateID, err)
			}
		}
	}
	fmt.Printf("seeded %d events\n", len(fix.Events))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
