// Package model holds the data types threaded through the federated
// search pipeline: branded identifiers, the library registry shape, book
// holdings, and the aggregated search result, per spec §3.
package model

import (
	"strings"
	"time"
)

// LibrarySystemId and BranchId are branded string types, preventing
// implicit interchange with plain strings or with each other.
type LibrarySystemId string
type BranchId string

// ItemStatus is the canonical status vocabulary every adapter normalizes
// raw vendor statuses into, per spec §4.2.1.
type ItemStatus string

const (
	StatusAvailable    ItemStatus = "available"
	StatusCheckedOut   ItemStatus = "checked_out"
	StatusInTransit    ItemStatus = "in_transit"
	StatusOnHold       ItemStatus = "on_hold"
	StatusOnOrder      ItemStatus = "on_order"
	StatusInProcessing ItemStatus = "in_processing"
	StatusMissing      ItemStatus = "missing"
	StatusUnknown      ItemStatus = "unknown"
)

// MaterialType is the canonical material-type vocabulary adapters map
// vendor-specific item-type codes into.
type MaterialType string

const (
	MaterialBook      MaterialType = "book"
	MaterialLargePrint MaterialType = "large_print"
	MaterialCD        MaterialType = "cd"
	MaterialDVD       MaterialType = "dvd"
	MaterialEbook     MaterialType = "ebook"
	MaterialAudiobook MaterialType = "audiobook"
	MaterialOther     MaterialType = "other"
)

// HoldingSource distinguishes holdings produced by a direct, real-time
// adapter call from ones produced by an aggregated/status-unknown path
// (spec §9's re-architected WorldCat marker).
type HoldingSource string

const (
	SourceDirect     HoldingSource = "direct"
	SourceAggregated HoldingSource = "aggregated"
)

// Branch describes one physical library location within a LibrarySystem.
type Branch struct {
	ID      BranchId `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Code    string   `yaml:"code" json:"code"`
	Address string   `yaml:"address,omitempty" json:"address,omitempty"`
	City    string   `yaml:"city,omitempty" json:"city,omitempty"`
}

// AdapterConfig is the declarative description of one adapter instance
// within a LibrarySystem's ordered (primary, then fallback) adapter list.
type AdapterConfig struct {
	Protocol           string            `yaml:"protocol" json:"protocol"`
	BaseURL            string            `yaml:"baseUrl" json:"baseUrl"`
	Port               int               `yaml:"port,omitempty" json:"port,omitempty"`
	DatabaseName       string            `yaml:"databaseName,omitempty" json:"databaseName,omitempty"`
	ClientKeyEnvVar    string            `yaml:"clientKeyEnvVar,omitempty" json:"clientKeyEnvVar,omitempty"`
	ClientSecretEnvVar string            `yaml:"clientSecretEnvVar,omitempty" json:"clientSecretEnvVar,omitempty"`
	TimeoutMs          int               `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
	MaxConcurrency     int               `yaml:"maxConcurrency,omitempty" json:"maxConcurrency,omitempty"`
	Extra              map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`

	// ClientKey and ClientSecret are resolved from the ambient environment
	// at load time and never serialized back out.
	ClientKey    string `yaml:"-" json:"-"`
	ClientSecret string `yaml:"-" json:"-"`
}

// Timeout returns the configured per-request timeout, defaulting to 10s.
func (a AdapterConfig) Timeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// Concurrency returns the configured per-system max concurrency, defaulting to 2.
func (a AdapterConfig) Concurrency() int {
	if a.MaxConcurrency <= 0 {
		return 2
	}
	return a.MaxConcurrency
}

// LibrarySystem is the declarative description of one library system, as
// loaded from the registry (spec §3, §6).
type LibrarySystem struct {
	ID         LibrarySystemId `yaml:"id" json:"id"`
	Name       string          `yaml:"name" json:"name"`
	Vendor     string          `yaml:"vendor" json:"vendor"`
	Region     string          `yaml:"region" json:"region"`
	CatalogURL string          `yaml:"catalogUrl" json:"catalogUrl"`
	Enabled    bool            `yaml:"enabled" json:"enabled"`
	Branches   []Branch        `yaml:"branches" json:"branches"`
	Adapters   []AdapterConfig `yaml:"adapters" json:"adapters"`
}

// BranchByCode looks up a declared branch by case-insensitive code or name
// match. Adapters use this to resolve scraped/parsed branch text to a
// known BranchId; unmatched branches are never an error (spec §4.2.2).
func (s LibrarySystem) BranchByCode(text string) (Branch, bool) {
	for _, b := range s.Branches {
		if strings.EqualFold(b.Code, text) || strings.EqualFold(b.Name, text) {
			return b, true
		}
	}
	return Branch{}, false
}

// BookHolding is one physical or logical copy at one branch, produced by
// an adapter and owned thereafter by the aggregator. Immutable once
// emitted.
type BookHolding struct {
	ISBN         string        `json:"isbn"`
	SystemID     LibrarySystemId `json:"systemId"`
	SystemName   string        `json:"systemName"`
	BranchID     BranchId      `json:"branchId"`
	BranchName   string        `json:"branchName"`
	CallNumber   string        `json:"callNumber,omitempty"`
	Barcode      string        `json:"barcode,omitempty"`
	Status       ItemStatus    `json:"status"`
	MaterialType MaterialType  `json:"materialType"`
	DueDate      string        `json:"dueDate,omitempty"`
	HoldCount    *int          `json:"holdCount,omitempty"`
	CopyCount    *int          `json:"copyCount,omitempty"`
	CatalogURL   string        `json:"catalogUrl,omitempty"`
	Collection   string        `json:"collection,omitempty"`
	Volume       string        `json:"volume,omitempty"`
	RawStatus    string        `json:"rawStatus"`
	Source       HoldingSource `json:"source"`
	Fingerprint  string        `json:"fingerprint"`
}

// AdapterError is one failing adapter attempt, recorded in SearchResult.
type AdapterError struct {
	SystemID  LibrarySystemId `json:"systemId"`
	Protocol  string          `json:"protocol"`
	ErrorType string          `json:"errorType"`
	Message   string          `json:"message"`
}

// BranchSummary aggregates holdings for one branch within one system.
type BranchSummary struct {
	BranchID         BranchId `json:"branchId"`
	BranchName       string   `json:"branchName"`
	TotalCopies      int      `json:"totalCopies"`
	AvailableCopies  int      `json:"availableCopies"`
	CheckedOutCopies int      `json:"checkedOutCopies"`
	HoldCount        int      `json:"holdCount"`
}

// SystemSummary aggregates holdings for one library system.
type SystemSummary struct {
	SystemID         LibrarySystemId `json:"systemId"`
	SystemName       string          `json:"systemName"`
	TotalCopies      int             `json:"totalCopies"`
	AvailableCopies  int             `json:"availableCopies"`
	CheckedOutCopies int             `json:"checkedOutCopies"`
	HoldCount        int             `json:"holdCount"`
	Branches         []BranchSummary `json:"branches"`
}

// SearchResult is the consolidated outcome of one federated search,
// immutable once CompletedAt is set (spec §3).
type SearchResult struct {
	RequestID        string          `json:"requestId"`
	RawISBN          string          `json:"rawIsbn"`
	ISBN13           string          `json:"isbn13"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      time.Time       `json:"completedAt,omitempty"`
	Holdings         []BookHolding   `json:"holdings"`
	Errors           []AdapterError  `json:"errors"`
	Systems          []SystemSummary `json:"systems"`
	TotalCopies      int             `json:"totalCopies"`
	TotalAvailable   int             `json:"totalAvailable"`
	SystemsSearched  int             `json:"systemsSearched"`
	SystemsSucceeded int             `json:"systemsSucceeded"`
	SystemsFailed    int             `json:"systemsFailed"`
	SystemsTimedOut  int             `json:"systemsTimedOut"`
	IsPartial        bool            `json:"isPartial"`
	FromCache        bool            `json:"fromCache"`
}
