package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"scantrack/internal/app"
	"scantrack/internal/barcode"
	"scantrack/internal/camera"
	"scantrack/internal/config"
	"scantrack/internal/database"
	"scantrack/internal/lookup"
	"scantrack/internal/meal"
	"scantrack/internal/platform"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	client := lookup.NewOpenFoodFactsClient(cfg.ProductAPIBaseURL, http.DefaultClient)
	lifecycle := platform.NewSignalLifecycle()

	application := app.NewApp(cfg, db, camera.NewGocvDriver(), barcode.NewZxingDecoder(), client, lifecycle)
	defer application.Close()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scan":
		scanCmd := flag.NewFlagSet("scan", flag.ExitOnError)
		mealFlag := scanCmd.String("meal", "snack", "Meal slot: breakfast, lunch, dinner or snack")
		servings := scanCmd.Float64("servings", 1, "Number of 100g servings")
		date := scanCmd.String("date", app.Today(), "Date to log to (YYYY-MM-DD)")
		scanCmd.Parse(os.Args[2:])

		mealType, err := meal.ParseType(*mealFlag)
		if err != nil {
			log.Fatalf("Invalid meal: %v", err)
		}
		if !application.CameraAvailable() {
			log.Fatal("No camera device found. Use 'log' with a barcode instead.")
		}

		result, err := application.CaptureAndLog(ctx, *date, mealType, *servings)
		if err != nil {
			log.Fatalf("Capture failed: %v", err)
		}
		printLogged(result)

	case "lookup":
		if len(os.Args) < 3 {
			log.Fatal("Usage: scantrack lookup <barcode>")
		}
		product, err := application.Lookup(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		printProduct(product)

	case "search":
		searchCmd := flag.NewFlagSet("search", flag.ExitOnError)
		limit := searchCmd.Int("limit", 10, "Maximum number of results")
		searchCmd.Parse(os.Args[2:])
		if searchCmd.NArg() < 1 {
			log.Fatal("Usage: scantrack search [-limit N] <query>")
		}

		results := application.Search(ctx, searchCmd.Arg(0), *limit)
		if len(results) == 0 {
			fmt.Println("No products found.")
			return
		}
		for _, p := range results {
			fmt.Printf("%-40s %-20s %3d kcal/100g  quality=%s\n",
				p.Name, p.Brand, int(p.NutritionPer100g.Calories), p.Quality.Level)
		}

	case "log":
		logCmd := flag.NewFlagSet("log", flag.ExitOnError)
		mealFlag := logCmd.String("meal", "snack", "Meal slot: breakfast, lunch, dinner or snack")
		servings := logCmd.Float64("servings", 1, "Number of 100g servings")
		date := logCmd.String("date", app.Today(), "Date to log to (YYYY-MM-DD)")
		logCmd.Parse(os.Args[2:])
		if logCmd.NArg() < 1 {
			log.Fatal("Usage: scantrack log [flags] <barcode>")
		}

		mealType, err := meal.ParseType(*mealFlag)
		if err != nil {
			log.Fatalf("Invalid meal: %v", err)
		}
		result, err := application.LogBarcode(ctx, *date, mealType, logCmd.Arg(0), *servings)
		if err != nil {
			log.Fatalf("Log failed: %v", err)
		}
		printLogged(result)

	case "day":
		date := app.Today()
		if len(os.Args) > 2 {
			date = os.Args[2]
		}
		day, err := application.Day(ctx, date)
		if err != nil {
			log.Fatalf("Failed to load day: %v", err)
		}
		printDay(day)

	case "goals":
		if len(os.Args) == 2 {
			goals, err := application.Goals(ctx)
			if err != nil {
				log.Fatalf("Failed to load goals: %v", err)
			}
			if goals == nil {
				fmt.Println("No goals set. Use: scantrack goals -calories N -carbs N -fat N -protein N -fiber N")
				return
			}
			fmt.Printf("Daily goals: %.0f kcal, %.0fg carbs, %.0fg fat, %.0fg protein, %.0fg fiber\n",
				goals.Calories, goals.Carbs, goals.Fat, goals.Protein, goals.Fiber)
			return
		}

		goalsCmd := flag.NewFlagSet("goals", flag.ExitOnError)
		calories := goalsCmd.Float64("calories", 2000, "Daily calorie goal")
		carbs := goalsCmd.Float64("carbs", 250, "Daily carbohydrate goal (g)")
		fat := goalsCmd.Float64("fat", 60, "Daily fat goal (g)")
		protein := goalsCmd.Float64("protein", 100, "Daily protein goal (g)")
		fiber := goalsCmd.Float64("fiber", 30, "Daily fiber goal (g)")
		goalsCmd.Parse(os.Args[2:])

		err := application.SetGoals(ctx, meal.Goals{
			Calories: *calories, Carbs: *carbs, Fat: *fat, Protein: *protein, Fiber: *fiber,
		})
		if err != nil {
			log.Fatalf("Failed to set goals: %v", err)
		}
		fmt.Println("Goals updated.")

	case "sync":
		date := app.Today()
		if len(os.Args) > 2 {
			date = os.Args[2]
		}
		if err := application.SyncDay(ctx, date); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		fmt.Printf("Synced %s.\n", date)

	case "stats":
		statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
		days := statsCmd.Int("days", 7, "Show sessions for the last N days")
		statsCmd.Parse(os.Args[2:])

		sessions, err := application.Sessions(ctx, *days)
		if err != nil {
			log.Fatalf("Failed to load stats: %v", err)
		}
		for _, d := range sessions {
			fmt.Printf("%s  %3d sessions  %3d logged  %3d cancelled  %3d failed\n",
				d.Date, d.Total, d.Logged, d.Cancelled, d.Failed)
		}
		health := application.Health()
		fmt.Printf("Memory: %d MB in use, data on disk: %s\n", health.AllocMB, health.DataDiskSize)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printLogged(r *app.CaptureResult) {
	fmt.Printf("Logged %s", r.Product.Name)
	if r.Product.Brand != "" {
		fmt.Printf(" (%s)", r.Product.Brand)
	}
	fmt.Printf(": %.0f kcal, %.1fg carbs, %.1fg fat, %.1fg protein\n",
		r.Product.NutritionPer100g.Calories, r.Product.NutritionPer100g.Carbs,
		r.Product.NutritionPer100g.Fat, r.Product.NutritionPer100g.Protein)
	fmt.Printf("Quality %d/100 (%s), confidence %d%%\n",
		r.Product.Quality.Score, r.Product.Quality.Level, r.Product.Confidence)
}

func printProduct(p *lookup.EnhancedProduct) {
	fmt.Printf("%s", p.Name)
	if p.Brand != "" {
		fmt.Printf(" (%s)", p.Brand)
	}
	fmt.Println()
	n := p.NutritionPer100g
	fmt.Printf("Per 100g: %.0f kcal, %.1fg carbs, %.1fg fat, %.1fg protein, %.1fg fiber\n",
		n.Calories, n.Carbs, n.Fat, n.Protein, n.Fiber)
	fmt.Printf("Quality %d/100 (%s), confidence %d%%", p.Quality.Score, p.Quality.Level, p.Confidence)
	if p.Cached {
		fmt.Print(" [cached]")
	}
	fmt.Println()
	for _, issue := range p.Quality.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
}

func printDay(day *meal.DayTotals) {
	fmt.Printf("Log for %s\n", day.Date)
	if len(day.Meals) == 0 {
		fmt.Println("  nothing logged")
		return
	}
	for _, m := range day.Meals {
		fmt.Printf("%s:\n", m.Type)
		for _, e := range m.Entries {
			fmt.Printf("  %-36s x%.1f  %.0f kcal\n", e.Name, e.Servings, e.Nutrition.Calories)
		}
	}
	t := day.Totals
	fmt.Printf("Totals: %.0f kcal, %.1fg carbs, %.1fg fat, %.1fg protein, %.1fg fiber\n",
		t.Calories, t.Carbs, t.Fat, t.Protein, t.Fiber)
	if day.Progress != nil {
		fmt.Printf("Goals:  %.0f%% kcal, %.0f%% carbs, %.0f%% fat, %.0f%% protein, %.0f%% fiber\n",
			day.Progress.Calories, day.Progress.Carbs, day.Progress.Fat,
			day.Progress.Protein, day.Progress.Fiber)
	}
}

func printUsage() {
	fmt.Println("Usage: scantrack <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scan    [-meal M] [-servings N] [-date D]   Capture a barcode with the camera and log it")
	fmt.Println("  lookup  <barcode>                           Look a barcode up without logging")
	fmt.Println("  search  [-limit N] <query>                  Search products by name")
	fmt.Println("  log     [-meal M] [-servings N] <barcode>   Log a barcode without the camera")
	fmt.Println("  day     [date]                              Show a day's log and totals")
	fmt.Println("  goals   [-calories N ...]                   Show or set daily goals")
	fmt.Println("  sync    [date]                              Upload a day to the remote service")
	fmt.Println("  stats   [-days N]                           Capture session statistics")
}
