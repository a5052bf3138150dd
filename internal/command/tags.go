package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	tagCacheTTL = time.Hour
	maxTags     = 10
)

// FetchContainerTags lists version tags of a container image, filtered by
// pattern (capture group 1 is the version). Results are capped at the ten
// newest and cached in the exchange store for an hour so dashboard refreshes
// do not hit the registry every time.
func FetchContainerTags(ctx context.Context, deps ArgDeps, registry, repo string, pattern *regexp.Regexp) ([]string, error) {
	cacheKey := fmt.Sprintf("cache:container-tags:%s/%s", registry, repo)

	if deps.Cache != nil {
		if raw, err := deps.Cache.Get(ctx, cacheKey); err == nil {
			var cached []string
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	tokenURL := fmt.Sprintf("https://%s/token?service=%s&scope=repository:%s:pull",
		registry, url.QueryEscape(registry), repo)
	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := deps.Fetch.DoJSON(ctx, http.MethodGet, tokenURL, nil, nil, &tokenResp); err != nil {
		return nil, fmt.Errorf("fetch registry token: %w", err)
	}

	tagsURL := fmt.Sprintf("https://%s/v2/%s/tags/list", registry, repo)
	var tagsResp struct {
		Tags []string `json:"tags"`
	}
	headers := map[string]string{"Authorization": "Bearer " + tokenResp.Token}
	if err := deps.Fetch.DoJSON(ctx, http.MethodGet, tagsURL, headers, nil, &tagsResp); err != nil {
		return nil, fmt.Errorf("list registry tags: %w", err)
	}

	var versions []string
	for _, tag := range tagsResp.Tags {
		if m := pattern.FindStringSubmatch(tag); m != nil {
			versions = append(versions, m[1])
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
	if len(versions) > maxTags {
		versions = versions[:maxTags]
	}

	if deps.Cache != nil {
		if raw, err := json.Marshal(versions); err == nil {
			// Cache failures only cost an extra registry roundtrip later.
			_ = deps.Cache.Put(ctx, cacheKey, raw, tagCacheTTL)
		}
	}
	return versions, nil
}

// compareVersions orders dotted numeric versions ("6.6.10" > "6.6.9").
// Non-numeric segments fall back to string comparison.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
			continue
		}
		if an != bn {
			if an > bn {
				return 1
			}
			return -1
		}
	}
	return len(as) - len(bs)
}
