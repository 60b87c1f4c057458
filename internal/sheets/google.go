package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/formsheet/server/internal/config"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// GoogleClient talks to the Sheets v4 API with service-account credentials.
type GoogleClient struct {
	service       *sheetsapi.Service
	spreadsheetID string
}

func NewGoogleClient(ctx context.Context, cfg config.SheetsConfig) (*GoogleClient, error) {
	if cfg.SpreadsheetID == "" || cfg.ServiceAccountEmail == "" || cfg.PrivateKey == "" {
		return nil, ErrNotConfigured
	}

	// keys pasted into .env files usually carry literal \n sequences
	privateKey := strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")

	jwtConfig := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{sheetsapi.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}

	service, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &GoogleClient{service: service, spreadsheetID: cfg.SpreadsheetID}, nil
}

func (c *GoogleClient) GetValues(ctx context.Context, rangeA1 string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}
	return resp.Values, nil
}

func (c *GoogleClient) UpdateValues(ctx context.Context, rangeA1 string, values [][]interface{}) error {
	body := &sheetsapi.ValueRange{Values: values}
	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, rangeA1, body).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (c *GoogleClient) SheetTitles(ctx context.Context) ([]string, error) {
	spreadsheet, err := c.service.Spreadsheets.Get(c.spreadsheetID).
		Fields(googleapi.Field("sheets.properties.title")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translateError(err)
	}

	titles := make([]string, 0, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}
	return titles, nil
}

// translateError maps the API's "Unable to parse range" response, which is what a missing tab produces.
func translateError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range") {
			return fmt.Errorf("%w: %s", ErrSheetNotFound, apiErr.Message)
		}
		if apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrSheetNotFound, apiErr.Message)
		}
	}
	return fmt.Errorf("sheets api: %w", err)
}
