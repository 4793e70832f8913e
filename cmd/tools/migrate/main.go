package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"pehlione.com/payrecon/internal/database"
	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/inventory"
)

func main() {
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "MySQL DSN (parseTime=true)")
	seed := flag.Bool("seed", false, "Insert a demo product and an active cart")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("DB_DSN environment variable or -dsn is required")
	}

	db, err := database.Open(*dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	fmt.Println("✓ Schema up to date")

	if !*seed {
		return
	}

	ctx := context.Background()
	p := inventory.Product{
		ID:         uuid.NewString(),
		Name:       "Demo Lamp",
		SKU:        "DEMO-" + uuid.NewString()[:8],
		PriceCents: 2500,
		Currency:   "EUR",
		Active:     true,
		Stock:      20,
	}
	if err := db.WithContext(ctx).Create(&p).Error; err != nil {
		log.Fatalf("Failed to seed product: %v", err)
	}
	repo := cart.NewRepo(db)
	c, err := repo.Create(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to seed cart: %v", err)
	}
	if err := repo.AddItem(ctx, c.ID, p.ID, nil, 2); err != nil {
		log.Fatalf("Failed to seed cart item: %v", err)
	}
	fmt.Printf("✓ Seeded product %s (%s) and cart %s\n", p.ID, p.SKU, c.ID)
}
