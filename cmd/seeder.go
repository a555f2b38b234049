package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initSQLDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGormDB(sqlDB)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"points_ledger_entries", "webhook_events", "jobs", "notifications", "bookings", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		ownerID := seedUser(db, "mara@mail.com", "Mara Host", string(hash))
		sitterID := seedUser(db, "sam@mail.com", "Sam Sitter", string(hash))

		// Give the sitter a small starting balance to redeem against.
		var haveEntries int
		if err := db.Raw("SELECT 1 FROM points_ledger_entries WHERE user_id = ? LIMIT 1", sitterID).Row().Scan(&haveEntries); err != nil {
			if err := db.Exec(
				"INSERT INTO points_ledger_entries (user_id, booking_id, points_delta, reason, created_at) VALUES (?, NULL, 5, 'booking_completed_points', now())",
				sitterID).Error; err != nil {
				log.Fatalf("failed to seed points: %v", err)
			}
			fmt.Println("Seeded starting points for sitter")
		}

		var haveBooking int
		if err := db.Raw("SELECT 1 FROM bookings WHERE owner_id = ? AND sitter_id = ? LIMIT 1", ownerID, sitterID).Row().Scan(&haveBooking); err != nil {
			start := time.Now().AddDate(0, 0, 7)
			end := start.AddDate(0, 0, 3)
			if err := db.Exec(
				`INSERT INTO bookings
				   (owner_id, sitter_id, start_date, end_date, status, payment_status,
				    service_fee_per_night, cleaning_fee, insurance_fee, service_fee_total, total_fee,
				    created_at, updated_at)
				 VALUES (?, ?, ?, ?, 'accepted', 'unpaid', 5000, 20000, 10000, 15000, 45000, now(), now())`,
				ownerID, sitterID, start, end).Error; err != nil {
				log.Fatalf("failed to seed booking: %v", err)
			}
			fmt.Println("Seeded an accepted, unpaid booking")
		}

		fmt.Println("Seed complete")
	},
}

func seedUser(db *gorm.DB, email, name, passwordHash string) int64 {
	var id int64
	if err := db.Raw("SELECT id FROM users WHERE email = ?", email).Row().Scan(&id); err == nil {
		fmt.Println("user already exists:", email)
		return id
	}

	if err := db.Exec(
		"INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())",
		email, name, passwordHash).Error; err != nil {
		log.Fatalf("failed to insert user %s: %v", email, err)
	}
	if err := db.Raw("SELECT id FROM users WHERE email = ?", email).Row().Scan(&id); err != nil {
		log.Fatalf("failed to lookup user %s: %v", email, err)
	}
	fmt.Println("Seeded user:", email)
	return id
}
