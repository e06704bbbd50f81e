package store

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/hazyhaar/webdog/model"
)

// legacyMonitor is the {url, hash} shape original_source/webdog_bot's
// db.json carried before the schema_version document wrapper existed.
type legacyMonitor struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

// migrate recognizes the two legacy db.json shapes database.py's
// load_all_monitors guarded against — a bare per-user dict ({chat_id:
// {url, hash}}) and a per-user list ({chat_id: [{url, hash}, ...]}) —
// and wraps each monitor into a current-schema UserData carrying a
// Fingerprint stamped version="legacy". Unknown per-user values are
// dropped with a warning; unrecognized keys inside a monitor entry are
// dropped silently by virtue of the legacyMonitor shape only reading
// url/hash.
func migrate(raw []byte, logger *slog.Logger) (map[string]model.UserData, []string, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, nil, err
	}

	data := make(map[string]model.UserData, len(root))
	order := make([]string, 0, len(root))
	for chatID := range root {
		order = append(order, chatID)
	}
	sort.Strings(order)

	for _, chatID := range order {
		raw := root[chatID]

		var single legacyMonitor
		if err := json.Unmarshal(raw, &single); err == nil && single.URL != "" {
			data[chatID] = model.UserData{
				UserConfig: model.DefaultConfig(),
				Monitors:   []model.Monitor{monitorFromLegacy(single)},
			}
			continue
		}

		var list []legacyMonitor
		if err := json.Unmarshal(raw, &list); err == nil {
			monitors := make([]model.Monitor, 0, len(list))
			for _, m := range list {
				if m.URL == "" {
					continue
				}
				monitors = append(monitors, monitorFromLegacy(m))
			}
			data[chatID] = model.UserData{
				UserConfig: model.DefaultConfig(),
				Monitors:   monitors,
			}
			continue
		}

		logger.Warn("store: dropped unrecognized legacy entry during migration", "chat_id", chatID)
	}

	return data, order, nil
}

func monitorFromLegacy(m legacyMonitor) model.Monitor {
	return model.Monitor{
		URL: m.URL,
		Fingerprint: &model.Fingerprint{
			Hash:    m.Hash,
			Version: "legacy",
		},
	}
}
