package settings

import (
	"encoding/json"
	"fmt"
)

// migration upgrades a raw document from version n to n+1 in place.
type migration func(doc map[string]any)

var migrations = map[int]migration{
	1: migrateV1,
	2: migrateV2,
}

// migrateV1 renames the v1 naming key.
func migrateV1(doc map[string]any) {
	if v, ok := doc["naming_mode"]; ok {
		if _, exists := doc["id_naming_mode"]; !exists {
			doc["id_naming_mode"] = v
		}
		delete(doc, "naming_mode")
	}
}

// migrateV2 moves the flat upload destination into the profile sub-document.
// Swatch settings did not exist before v3 and are left absent.
func migrateV2(doc map[string]any) {
	dest, ok := doc["upload_destination"]
	if !ok {
		return
	}
	delete(doc, "upload_destination")
	if _, exists := doc["profile"]; exists {
		return
	}
	name, _ := dest.(string)
	platform, _ := doc["upload_platform"].(string)
	delete(doc, "upload_platform")
	if platform == "" {
		platform = "none"
	}
	doc["profile"] = map[string]any{"upload_profile": name, "platform": platform}
}

// decodeDocument migrates raw forward and decodes it. The returned key set
// lists the top-level keys present after migration.
func decodeDocument(raw []byte) (Snapshot, map[string]bool, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, nil, err
	}
	if doc == nil {
		return Snapshot{}, nil, fmt.Errorf("configuration is not a JSON object")
	}

	version := 1
	if v, ok := doc["version"].(float64); ok {
		version = int(v)
	}
	if version < 1 || version > CurrentVersion {
		return Snapshot{}, nil, fmt.Errorf("unsupported configuration version %d", version)
	}
	for ; version < CurrentVersion; version++ {
		if migrate, ok := migrations[version]; ok {
			migrate(doc)
		}
	}
	doc["version"] = CurrentVersion

	keys := make(map[string]bool, len(doc))
	for k := range doc {
		keys[k] = true
	}

	migrated, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap := Default()
	if err := json.Unmarshal(migrated, &snap); err != nil {
		return Snapshot{}, nil, err
	}
	return snap, keys, nil
}
