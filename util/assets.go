package util

import (
	"regexp"
	"strings"
)

type AssetType int

const (
	ASSET_INVALID AssetType = iota
	ASSET_ROOT
	ASSET_SUB
	ASSET_UNIQUE
	ASSET_OWNER
	ASSET_MSGCHANNEL
	ASSET_QUALIFIER
	ASSET_SUB_QUALIFIER
	ASSET_RESTRICTED
)

const (
	MIN_ASSET_LENGTH = 3
	MAX_ASSET_LENGTH = 30 // Including parent names and separators
)

var (
	rootNameRe    = regexp.MustCompile(`^[A-Z0-9]+([._][A-Z0-9]+)*$`)
	uniqueTagRe   = regexp.MustCompile(`^[-A-Za-z0-9@$%&*()\[\]{}_.?:]+$`)
	channelNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	reservedNames = map[string]struct{}{
		"RVN": {}, "RAVEN": {}, "RAVENCOIN": {},
	}
)

var assetTypeNames = map[AssetType]string{
	ASSET_INVALID:       "invalid",
	ASSET_ROOT:          "root",
	ASSET_SUB:           "sub",
	ASSET_UNIQUE:        "unique",
	ASSET_OWNER:         "owner",
	ASSET_MSGCHANNEL:    "msgchannel",
	ASSET_QUALIFIER:     "qualifier",
	ASSET_SUB_QUALIFIER: "subqualifier",
	ASSET_RESTRICTED:    "restricted",
}

func (t AssetType) String() string {
	return assetTypeNames[t]
}

// Transferable reports whether holders of this kind of asset can be paid,
// or the asset used to pay, in a divisible reward transfer.
func (t AssetType) Transferable() bool {
	return t == ASSET_ROOT || t == ASSET_SUB
}

// ParseAssetType classifies an asset name. ASSET_INVALID is returned for any
// name that does not follow the ledger's naming rules.
func ParseAssetType(name string) AssetType {

	if len(name) < MIN_ASSET_LENGTH || len(name) > MAX_ASSET_LENGTH {
		return ASSET_INVALID
	}

	switch {
	case strings.HasSuffix(name, "!"):
		if isValidParentPath(strings.TrimSuffix(name, "!")) {
			return ASSET_OWNER
		}

	case strings.HasPrefix(name, "$"):
		if isValidRootName(name[1:]) {
			return ASSET_RESTRICTED
		}

	case strings.HasPrefix(name, "#"):
		parts := strings.Split(name, "/")
		for _, p := range parts {
			if !strings.HasPrefix(p, "#") || !isValidRootName(p[1:]) {
				return ASSET_INVALID
			}
		}
		if len(parts) == 1 {
			return ASSET_QUALIFIER
		}
		return ASSET_SUB_QUALIFIER

	case strings.Contains(name, "#"):
		idx := strings.Index(name, "#")
		if isValidParentPath(name[:idx]) && uniqueTagRe.MatchString(name[idx+1:]) {
			return ASSET_UNIQUE
		}

	case strings.Contains(name, "~"):
		idx := strings.Index(name, "~")
		if isValidParentPath(name[:idx]) && channelNameRe.MatchString(name[idx+1:]) {
			return ASSET_MSGCHANNEL
		}

	case strings.Contains(name, "/"):
		if isValidParentPath(name) {
			return ASSET_SUB
		}

	default:
		if isValidRootName(name) {
			return ASSET_ROOT
		}
	}

	return ASSET_INVALID
}

func isValidRootName(name string) bool {

	if len(name) < MIN_ASSET_LENGTH {
		return false
	}

	if _, reserved := reservedNames[name]; reserved {
		return false
	}

	return rootNameRe.MatchString(name)
}

// isValidParentPath accepts ROOT or ROOT/SUB[/SUB...]
func isValidParentPath(path string) bool {

	parts := strings.Split(path, "/")
	if !isValidRootName(parts[0]) {
		return false
	}

	for _, sub := range parts[1:] {
		if sub == "" || !rootNameRe.MatchString(sub) {
			return false
		}
	}

	return true
}
