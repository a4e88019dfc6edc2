// Command main loads demo company feeds into the configured database.
package main

import (
	"context"
	"flag"
	"log"
	"sort"
	"strings"

	"anonfeed/internal/bootstrap"
	"anonfeed/internal/config"
	"anonfeed/internal/seed"
)

func main() {
	preset := flag.String("preset", "", "Also generate random feeds: "+presetNames())
	companies := flag.Int("companies", 0, "Override the preset's number of companies")
	posts := flag.Int("posts", 0, "Override the preset's posts per company")
	randSeed := flag.Int64("seed", 0, "Random seed for generated content (0 picks one)")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.Open(ctx, cfg, bootstrap.Options{SeedFixtures: true})
	if err != nil {
		log.Fatalf("Failed to open runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if *preset == "" {
		log.Println("Fixtures loaded.")
		return
	}

	opts, ok := seed.Presets[*preset]
	if !ok {
		log.Fatalf("Unknown preset %q (want one of %s)", *preset, presetNames())
	}
	if *companies > 0 {
		opts.Companies = *companies
	}
	if *posts > 0 {
		opts.PostsPerCompany = *posts
	}
	opts.Seed = *randSeed

	sum, err := seed.NewGenerator(rt.Posts, rt.Comments, opts).Run(ctx)
	if err != nil {
		log.Fatalf("Generation failed: %v", err)
	}
	log.Printf("Generated %d posts, %d comments, %d likes across %d companies",
		sum.Posts, sum.Comments, sum.Likes, opts.Companies)
}

func presetNames() string {
	names := make([]string, 0, len(seed.Presets))
	for name := range seed.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
