package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/jewelry-appointment-bot/internal/appointment"
	"github.com/hackgods/jewelry-appointment-bot/internal/clock"
	"github.com/hackgods/jewelry-appointment-bot/internal/config"
	"github.com/hackgods/jewelry-appointment-bot/internal/db"
	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
)

var seedNotes = []string{
	"",
	"Ring fitting",
	"Bangle resize",
	"Necklace clasp repair",
	"Earring design consult",
	"Gold exchange valuation",
	"Bridal set trial",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	perDay := flag.Int("per-day", 6, "appointments to create for today and for tomorrow")
	creator := flag.String("creator", "", "creator WhatsApp number, e.g. whatsapp:+919999999999 (empty: no reminders on restore)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatalf("seed needs STORAGE_DRIVER=%s", config.StoragePostgres)
	}

	clk, err := clock.Load(cfg.Timezone)
	if err != nil {
		log.Fatalf("load timezone: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := appointment.NewPgRepository(pool)
	for _, date := range []string{clock.Today(clk), clock.Tomorrow(clk)} {
		if err := seedDay(ctx, repo, date, *perDay, *creator); err != nil {
			log.Fatalf("seed %s: %v", date, err)
		}
	}

	log.Println("seed complete")
}

// seedDay books count random free slots; slots already taken are skipped.
func seedDay(ctx context.Context, repo appointment.Repository, date string, count int, creator string) error {
	log.Printf("seeding %d appointments for %s", count, date)

	slots := allSlots()
	gofakeit.ShuffleInts(slots)
	created := 0

	for _, idx := range slots {
		if created == count {
			break
		}

		appt, err := repo.Insert(ctx, appointment.NewAppointment{
			FirstName:     gofakeit.FirstName(),
			LastName:      gofakeit.LastName(),
			Mobile:        gofakeit.Phone(),
			Date:          date,
			SlotIndex:     idx,
			CreatorNumber: creator,
			Notes:         seedNotes[gofakeit.Number(0, len(seedNotes)-1)],
		})
		if errors.Is(err, appointment.ErrSlotTaken) {
			continue
		}
		if err != nil {
			return err
		}

		created++
		log.Printf("booked id=%d %s %s for %s", appt.ID, appt.Date, slot.DisplayTime(appt.SlotIndex), appt.FullName())
	}

	log.Printf("%s: %d appointments seeded", date, created)
	return nil
}

func allSlots() []int {
	out := make([]int, slot.Count)
	for i := range out {
		out[i] = i
	}
	return out
}
