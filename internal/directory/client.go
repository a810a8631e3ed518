package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrDeviceNotFound = errors.New("device not found in directory")

// DeviceSummary is one entry of the device directory. IPAddress is the
// identity key.
type DeviceSummary struct {
	Status        string `json:"device_status"`
	Name          string `json:"device_name"`
	IPAddress     string `json:"device_ip"`
	FreeStorageMB int    `json:"sd_free_mem"`
}

func (d DeviceSummary) Online() bool {
	return strings.EqualFold(d.Status, "online")
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ListDevices fetches a fresh snapshot of the directory. Nothing is cached.
func (c *Client) ListDevices(ctx context.Context) ([]DeviceSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_device_list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("device directory returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var devices []DeviceSummary
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("failed to decode device list: %w", err)
	}

	c.logger.Debug("Device list fetched", zap.Int("count", len(devices)))
	return devices, nil
}

// FindDevice looks ipAddress up in a fresh listing.
func (c *Client) FindDevice(ctx context.Context, ipAddress string) (DeviceSummary, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return DeviceSummary{}, err
	}
	for _, d := range devices {
		if d.IPAddress == ipAddress {
			return d, nil
		}
	}
	return DeviceSummary{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, ipAddress)
}
