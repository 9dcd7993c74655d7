package version

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/json"
)

// Repo is the GitHub repository checked for releases.
const Repo = "litescript/oxviewer"

// UpdateInfo contains information about available updates.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	Error           error
}

// Checker asks the GitHub API for the newest release.
type Checker struct {
	Client *httpc.Client
	JSON   json.Factory
	// API is the API root, https://api.github.com unless set.
	API string
}

// CheckForUpdate checks GitHub for the latest release version. The latest
// release is tried first, then the newest tag.
func (c Checker) CheckForUpdate(ctx context.Context) UpdateInfo {
	info := UpdateInfo{CurrentVersion: Version}

	api := c.API
	if api == "" {
		api = "https://api.github.com"
	}
	api = strings.TrimRight(api, "/") + "/repos/" + Repo

	v, code, err := c.get(ctx, api+"/releases/latest")
	if err != nil {
		info.Error = fmt.Errorf("failed to check for updates: %w", err)
		return info
	}

	var tag string
	if code == http.StatusOK {
		obj, ok := v.(json.Object)
		if !ok {
			info.Error = fmt.Errorf("failed to parse update response: not an object")
			return info
		}
		if tag, err = obj.GetString("tag_name"); err != nil {
			info.Error = fmt.Errorf("failed to parse update response: %w", err)
			return info
		}
	} else {
		// No releases yet
		if tag, err = c.newestTag(ctx, api+"/tags"); err != nil {
			info.Error = err
			return info
		}
		if tag == "" {
			info.LatestVersion = info.CurrentVersion
			return info
		}
	}

	info.LatestVersion = normalizeVersion(tag)
	info.UpdateAvailable = isNewerVersion(info.LatestVersion, info.CurrentVersion)
	return info
}

func (c Checker) newestTag(ctx context.Context, url string) (string, error) {
	v, code, err := c.get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to check for updates: %w", err)
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("failed to check for updates: status %d", code)
	}

	tags, ok := v.(json.Array)
	if !ok {
		return "", fmt.Errorf("failed to parse update response: not an array")
	}
	if tags.Len() == 0 {
		return "", nil
	}

	// Tags are returned newest first
	first, err := tags.GetObject(0)
	if err != nil {
		return "", fmt.Errorf("failed to parse update response: %w", err)
	}
	name, err := first.GetString("name")
	if err != nil {
		return "", fmt.Errorf("failed to parse update response: %w", err)
	}
	return name, nil
}

func (c Checker) get(ctx context.Context, url string) (json.Value, int, error) {
	client := c.Client
	if client == nil {
		client = httpc.NewClient()
	}
	f := c.JSON
	if f == nil {
		f = json.NewFactory()
	}

	resp, err := client.NewRequest().
		URL(url).
		Header("Accept", "application/vnd.github+json").
		Execute(ctx)
	if err != nil {
		return nil, 0, err
	}
	if resp.Code() != http.StatusOK {
		return nil, resp.Code(), nil
	}
	v, err := resp.JSON(f)
	if err != nil {
		return nil, resp.Code(), err
	}
	return v, resp.Code(), nil
}

// normalizeVersion strips the "v" prefix if present.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewerVersion returns true if latest is newer than current. Parts are
// compared numerically; a longer version with equal prefix is newer.
func isNewerVersion(latest, current string) bool {
	latestParts := strings.Split(latest, ".")
	currentParts := strings.Split(current, ".")

	for i := 0; i < len(latestParts) && i < len(currentParts); i++ {
		latestNum, _ := strconv.Atoi(leadingDigits(latestParts[i]))
		currentNum, _ := strconv.Atoi(leadingDigits(currentParts[i]))

		if latestNum > currentNum {
			return true
		} else if latestNum < currentNum {
			return false
		}
	}

	return len(latestParts) > len(currentParts)
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// InstallCommand returns the command to update the application.
func InstallCommand() string {
	return "go install github.com/litescript/oxviewer/cmd/oxv@latest"
}
