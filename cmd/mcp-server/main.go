package main

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/customer"
	"github.com/patrickwarner/adtarget/internal/db"
	"github.com/patrickwarner/adtarget/internal/logic/selectors"
	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// CreateContentInput is the payload of the create_content tool.
type CreateContentInput struct {
	MarketplaceID     string `json:"marketplace_id"`
	RenderableContent string `json:"renderable_content"`
}

type CreateContentOutput struct {
	ContentID string `json:"content_id"`
}

// CreateTargetingGroupInput is the payload of the create_targeting_group tool.
type CreateTargetingGroupInput struct {
	ContentID  string                    `json:"content_id"`
	Predicates []targeting.PredicateSpec `json:"predicates"`
}

type CreateTargetingGroupOutput struct {
	GroupID          string  `json:"group_id"`
	ClickThroughRate float64 `json:"click_through_rate"`
}

// UpdateCTRInput is the payload of the update_click_through_rate tool.
type UpdateCTRInput struct {
	GroupID          string  `json:"group_id"`
	ClickThroughRate float64 `json:"click_through_rate"`
}

type UpdateCTROutput struct {
	GroupID          string  `json:"group_id"`
	ClickThroughRate float64 `json:"click_through_rate"`
}

// SelectInput is the payload of the select_advertisement tool.
type SelectInput struct {
	CustomerID    string `json:"customer_id"`
	MarketplaceID string `json:"marketplace_id"`
}

type SelectOutput struct {
	AdvertisementID   string `json:"advertisement_id"`
	ContentID         string `json:"content_id,omitempty"`
	RenderableContent string `json:"renderable_content,omitempty"`
	TargetingGroupID  string `json:"targeting_group_id,omitempty"`
	Filled            bool   `json:"filled"`
}

// targetServer holds the dependencies behind the MCP tools.
type targetServer struct {
	pg        *db.Postgres
	dataStore models.ContentDataStore
	factory   *targeting.Factory
	selector  selectors.Selector
	logger    *zap.Logger
}

func (s *targetServer) CreateContent(ctx context.Context, req *mcp.CallToolRequest, input CreateContentInput) (*mcp.CallToolResult, CreateContentOutput, error) {
	if input.MarketplaceID == "" {
		return nil, CreateContentOutput{}, fmt.Errorf("marketplace_id is required")
	}
	content, err := s.dataStore.CreateContent(models.AdvertisementContent{
		MarketplaceID:     input.MarketplaceID,
		RenderableContent: input.RenderableContent,
	})
	if err != nil {
		return nil, CreateContentOutput{}, fmt.Errorf("create content: %w", err)
	}
	if s.pg != nil {
		if err := s.pg.InsertContent(content); err != nil {
			s.logger.Error("persist content", zap.Error(err), zap.String("content_id", content.ID))
		}
	}
	return nil, CreateContentOutput{ContentID: content.ID}, nil
}

func (s *targetServer) CreateTargetingGroup(ctx context.Context, req *mcp.CallToolRequest, input CreateTargetingGroupInput) (*mcp.CallToolResult, CreateTargetingGroupOutput, error) {
	preds, err := s.factory.BuildAll(input.Predicates)
	if err != nil {
		return nil, CreateTargetingGroupOutput{}, fmt.Errorf("invalid predicates: %w", err)
	}
	group, err := s.dataStore.CreateGroup(models.TargetingGroup{
		ContentID:      input.ContentID,
		PredicateSpecs: input.Predicates,
		Predicates:     preds,
	})
	if err != nil {
		return nil, CreateTargetingGroupOutput{}, fmt.Errorf("create targeting group: %w", err)
	}
	if s.pg != nil {
		if err := s.pg.InsertTargetingGroup(group); err != nil {
			s.logger.Error("persist targeting group", zap.Error(err), zap.String("group_id", group.ID))
		}
	}
	return nil, CreateTargetingGroupOutput{GroupID: group.ID, ClickThroughRate: group.ClickThroughRate}, nil
}

func (s *targetServer) UpdateClickThroughRate(ctx context.Context, req *mcp.CallToolRequest, input UpdateCTRInput) (*mcp.CallToolResult, UpdateCTROutput, error) {
	if input.ClickThroughRate < 0 {
		return nil, UpdateCTROutput{}, fmt.Errorf("click_through_rate must be non-negative")
	}
	if err := s.dataStore.UpdateClickThroughRate(input.GroupID, input.ClickThroughRate); err != nil {
		return nil, UpdateCTROutput{}, err
	}
	if s.pg != nil {
		if err := s.pg.UpdateClickThroughRate(input.GroupID, input.ClickThroughRate); err != nil {
			s.logger.Error("persist click-through rate", zap.Error(err), zap.String("group_id", input.GroupID))
		}
	}
	return nil, UpdateCTROutput{GroupID: input.GroupID, ClickThroughRate: input.ClickThroughRate}, nil
}

func (s *targetServer) SelectAdvertisement(ctx context.Context, req *mcp.CallToolRequest, input SelectInput) (*mcp.CallToolResult, SelectOutput, error) {
	rc := targeting.NewRequestContext(input.CustomerID, input.MarketplaceID)
	ad := s.selector.SelectAdvertisement(ctx, input.MarketplaceID, rc)
	return nil, SelectOutput{
		AdvertisementID:   ad.ID,
		ContentID:         ad.Content.ID,
		RenderableContent: ad.Content.RenderableContent,
		TargetingGroupID:  ad.TargetingGroupID,
		Filled:            !ad.IsEmpty(),
	}, nil
}

func main() {
	// MCP speaks on stdio, so all logging goes to stderr.
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.NameKey = "logger"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("adtarget-mcp").With(zap.String("service", "adtarget-mcp"))

	cfg := config.Load()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("Connected to PostgreSQL")

	profiles := customer.NewProfileClient(cfg.ProfileServiceURL, cfg.CustomerClientTimeout, cfg.CustomerCacheTTL, logger, nil)
	spend := customer.NewSpendClient(cfg.SpendServiceURL, cfg.CustomerClientTimeout, cfg.CustomerCacheTTL, logger, nil)
	benefits := customer.NewBenefitClient(cfg.BenefitServiceURL, cfg.CustomerClientTimeout, cfg.CustomerCacheTTL, logger, nil)
	factory := targeting.NewFactory(profiles, spend, benefits)

	dataStore := models.NewInMemoryContentDataStore()

	contents, err := pg.LoadContent()
	if err != nil {
		logger.Fatal("Failed to load content", zap.Error(err))
	}
	groups, err := pg.LoadTargetingGroups()
	if err != nil {
		logger.Fatal("Failed to load targeting groups", zap.Error(err))
	}
	for i := range groups {
		preds, err := factory.BuildAll(groups[i].PredicateSpecs)
		if err != nil {
			logger.Fatal("Failed to build predicates", zap.Error(err), zap.String("group_id", groups[i].ID))
		}
		groups[i].Predicates = preds
	}
	dataStore.ReloadAll(contents, groups)
	logger.Info("Loaded catalog from Postgres",
		zap.Int("content", len(contents)),
		zap.Int("targeting_groups", len(groups)))

	evaluator := targeting.NewEvaluator(cfg.EvaluatorWorkers, cfg.PredicateTimeout, logger)
	selector := selectors.NewRuleBasedSelector(dataStore, evaluator, nil, logger)

	ts := &targetServer{
		pg:        pg,
		dataStore: dataStore,
		factory:   factory,
		selector:  selector,
		logger:    logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adtarget",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_content",
		Description: "Register a new piece of advertisement content in a marketplace",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"marketplace_id": map[string]interface{}{
					"type":        "string",
					"description": "Marketplace the content belongs to",
				},
				"renderable_content": map[string]interface{}{
					"type":        "string",
					"description": "Opaque payload served to the shopper",
				},
			},
			"required": []string{"marketplace_id"},
		},
	}, ts.CreateContent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_targeting_group",
		Description: "Attach a targeting group with eligibility predicates to a content item",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content_id": map[string]interface{}{
					"type":        "string",
					"description": "Content the group targets",
				},
				"predicates": map[string]interface{}{
					"type":        "array",
					"description": "Predicate specs; all must hold for the group to match",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"type": map[string]interface{}{
								"type": "string",
								"enum": targeting.Kinds,
							},
							"negate": map[string]interface{}{
								"type": "boolean",
							},
							"attributes": map[string]interface{}{
								"type": "object",
							},
						},
						"required": []string{"type"},
					},
				},
			},
			"required": []string{"content_id"},
		},
	}, ts.CreateTargetingGroup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_click_through_rate",
		Description: "Override the click-through rate of a targeting group",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"group_id": map[string]interface{}{
					"type":        "string",
					"description": "Targeting group to update",
				},
				"click_through_rate": map[string]interface{}{
					"type":        "number",
					"description": "New click-through rate",
				},
			},
			"required": []string{"group_id", "click_through_rate"},
		},
	}, ts.UpdateClickThroughRate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_advertisement",
		Description: "Select the best-matching advertisement for a customer in a marketplace",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"customer_id": map[string]interface{}{
					"type":        "string",
					"description": "Customer identity; empty for anonymous visitors",
				},
				"marketplace_id": map[string]interface{}{
					"type":        "string",
					"description": "Marketplace to select from",
				},
			},
			"required": []string{"marketplace_id"},
		},
	}, ts.SelectAdvertisement)

	logger.Info("MCP Server running via stdio")

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
