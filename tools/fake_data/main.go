package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/customer"
	"github.com/patrickwarner/adtarget/internal/db"
	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/observability"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

var (
	marketplaces  = flag.Int("marketplaces", 3, "number of marketplaces")
	contentPerMkt = flag.Int("content", 20, "content items per marketplace")
	groupsPer     = flag.Int("groups", 2, "targeting groups per content item")
	seed          = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload    = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

var spendCategories = []string{"books", "electronics", "grocery", "toys", "fashion"}

var benefitTypes = []string{"media_streaming", "free_shipping", "photo_storage", "gaming"}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	r := rand.New(rand.NewSource(*seed))

	var inserted int
	for m := 0; m < *marketplaces; m++ {
		marketplaceID := fmt.Sprintf("mk-%s", []string{"us", "de", "jp", "uk", "fr", "it", "ca", "au"}[m%8])

		for c := 0; c < *contentPerMkt; c++ {
			content := models.AdvertisementContent{
				ID:                uuid.NewString(),
				MarketplaceID:     marketplaceID,
				RenderableContent: fakeRenderable(r),
			}
			if err := pg.InsertContent(content); err != nil {
				logger.Fatal("insert content", zap.Error(err))
			}

			for g := 0; g < *groupsPer; g++ {
				group := models.TargetingGroup{
					ID:               uuid.NewString(),
					ContentID:        content.ID,
					ClickThroughRate: models.DefaultClickThroughRate,
					PredicateSpecs:   randomPredicates(r),
				}
				if err := pg.InsertTargetingGroup(group); err != nil {
					logger.Fatal("insert targeting group", zap.Error(err))
				}
			}
			inserted++
		}
	}
	logger.Info("Seeded catalog",
		zap.Int("marketplaces", *marketplaces),
		zap.Int("content", inserted))

	if !*skipReload {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/reload", cfg.Port))
		if err != nil {
			logger.Warn("trigger reload", zap.Error(err))
			return
		}
		_ = resp.Body.Close()
		logger.Info("Triggered reload", zap.Int("status", resp.StatusCode))
	}
}

// randomPredicates builds between zero and two predicate specs. A zero-length
// list makes the group unrestricted.
func randomPredicates(r *rand.Rand) []targeting.PredicateSpec {
	n := r.Intn(3)
	specs := make([]targeting.PredicateSpec, 0, n)
	for i := 0; i < n; i++ {
		specs = append(specs, randomPredicate(r))
	}
	return specs
}

func randomPredicate(r *rand.Rand) targeting.PredicateSpec {
	negate := r.Intn(4) == 0
	switch r.Intn(6) {
	case 0:
		return targeting.PredicateSpec{
			Type:   targeting.KindAge,
			Negate: negate,
			Attributes: map[string]string{
				"ageRange": string(customer.AgeRanges[r.Intn(len(customer.AgeRanges))]),
			},
		}
	case 1:
		return targeting.PredicateSpec{
			Type:   targeting.KindCategorySpendFrequency,
			Negate: negate,
			Attributes: map[string]string{
				"category":   spendCategories[r.Intn(len(spendCategories))],
				"comparison": randomComparison(r),
				"target":     strconv.Itoa(1 + r.Intn(20)),
			},
		}
	case 2:
		return targeting.PredicateSpec{
			Type:   targeting.KindCategorySpendValue,
			Negate: negate,
			Attributes: map[string]string{
				"category":   spendCategories[r.Intn(len(spendCategories))],
				"comparison": randomComparison(r),
				"target":     strconv.Itoa(500 * (1 + r.Intn(100))),
			},
		}
	case 3:
		return targeting.PredicateSpec{
			Type:   targeting.KindPrimeBenefit,
			Negate: negate,
			Attributes: map[string]string{
				"benefit": benefitTypes[r.Intn(len(benefitTypes))],
			},
		}
	case 4:
		return targeting.PredicateSpec{Type: targeting.KindParent, Negate: negate}
	default:
		return targeting.PredicateSpec{Type: targeting.KindRecognized, Negate: negate}
	}
}

func randomComparison(r *rand.Rand) string {
	return []string{"LT", "GT", "EQ"}[r.Intn(3)]
}

func fakeRenderable(r *rand.Rand) string {
	products := []string{"headphones", "novels", "sneakers", "blenders", "cameras", "backpacks"}
	offers := []string{"20% off", "buy one get one", "free shipping", "new arrivals", "clearance"}
	return fmt.Sprintf(`<div class="ad"><h3>%s</h3><p>%s on %s</p></div>`,
		fakeHeadline(r),
		offers[r.Intn(len(offers))],
		products[r.Intn(len(products))])
}

func fakeHeadline(r *rand.Rand) string {
	adjectives := []string{"Great", "Amazing", "Fresh", "Top", "Daily"}
	nouns := []string{"Deals", "Picks", "Finds", "Savings", "Offers"}
	return adjectives[r.Intn(len(adjectives))] + " " + nouns[r.Intn(len(nouns))]
}
