package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"lukechampine.com/blake3"

	"mintgate/core/events"
	"mintgate/core/types"
)

// StreamEnvelope mirrors the JSON the node writes on /ws/events.
type StreamEnvelope struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

// Indexer writes stream events into the relational index, deduplicating by
// content hash and committing the checkpoint after every row.
type Indexer struct {
	db     *gorm.DB
	store  *CheckpointStore
	logger *slog.Logger
}

// NewIndexer wires an indexer over the audit database and checkpoint store.
func NewIndexer(db *gorm.DB, store *CheckpointStore, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("auditd: database required")
	}
	if store == nil {
		return nil, fmt.Errorf("auditd: checkpoint store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, store: store, logger: logger}, nil
}

// contentHash fingerprints one envelope: sequence, type, and the attribute
// map in key order. Identical mints at different stream positions hash
// differently; a replayed envelope hashes the same.
func contentHash(envelope StreamEnvelope) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(envelope.Sequence, 10))
	b.WriteByte('\n')
	if envelope.Event != nil {
		b.WriteString(envelope.Event.Type)
		b.WriteByte('\n')
		keys := make([]string, 0, len(envelope.Event.Attributes))
		for key := range envelope.Event.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(envelope.Event.Attributes[key])
			b.WriteByte('\n')
		}
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Apply indexes one envelope. Duplicates are skipped silently; the
// checkpoint only advances after the row is written.
func (ix *Indexer) Apply(envelope StreamEnvelope) error {
	if envelope.Event == nil || strings.TrimSpace(envelope.Event.Type) == "" {
		return nil
	}
	hash := contentHash(envelope)
	seen, err := ix.store.SeenHash(hash)
	if err != nil {
		return fmt.Errorf("auditd: check hash: %w", err)
	}
	if seen {
		metrics().duplicates.Inc()
		return nil
	}

	observedAt := time.Unix(envelope.Timestamp, 0).UTC()
	if envelope.Event.Type == events.TypeDropMinted {
		err = ix.indexMint(envelope, hash, observedAt)
	} else {
		err = ix.indexAdminChange(envelope, hash, observedAt)
	}
	if err != nil {
		return err
	}
	if err := ix.store.Commit(hash, envelope.Sequence); err != nil {
		return fmt.Errorf("auditd: commit checkpoint: %w", err)
	}
	metrics().indexed.WithLabelValues(envelope.Event.Type).Inc()
	metrics().lag.Set(float64(envelope.Sequence))
	return nil
}

func (ix *Indexer) indexMint(envelope StreamEnvelope, hash string, observedAt time.Time) error {
	evt := envelope.Event
	quantity, err := strconv.ParseUint(evt.Attribute("quantity"), 10, 64)
	if err != nil {
		return fmt.Errorf("auditd: mint quantity: %w", err)
	}
	feeBps, err := strconv.ParseUint(evt.Attribute("feeBps"), 10, 16)
	if err != nil {
		return fmt.Errorf("auditd: mint feeBps: %w", err)
	}
	stageIndex, err := strconv.ParseUint(evt.Attribute("dropStageIndex"), 10, 32)
	if err != nil {
		return fmt.Errorf("auditd: mint dropStageIndex: %w", err)
	}
	record := MintRecord{
		ID:             uuid.New(),
		Sequence:       envelope.Sequence,
		ContentHash:    hash,
		Collection:     evt.Attribute("collection"),
		Minter:         evt.Attribute("minter"),
		FeeRecipient:   evt.Attribute("feeRecipient"),
		Payer:          evt.Attribute("payer"),
		Quantity:       quantity,
		UnitPrice:      evt.Attribute("unitPrice"),
		FeeBps:         uint16(feeBps),
		DropStageIndex: uint32(stageIndex),
		ObservedAt:     observedAt,
	}
	if err := ix.db.Create(&record).Error; err != nil {
		return fmt.Errorf("auditd: index mint: %w", err)
	}
	ix.logger.Debug("indexed mint",
		"sequence", envelope.Sequence,
		"collection", record.Collection,
		"quantity", record.Quantity,
	)
	return nil
}

func (ix *Indexer) indexAdminChange(envelope StreamEnvelope, hash string, observedAt time.Time) error {
	evt := envelope.Event
	details, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("auditd: encode attributes: %w", err)
	}
	change := AdminChange{
		ID:          uuid.New(),
		Sequence:    envelope.Sequence,
		ContentHash: hash,
		EventType:   evt.Type,
		Collection:  evt.Attribute("collection"),
		Details:     string(details),
		ObservedAt:  observedAt,
	}
	if err := ix.db.Create(&change).Error; err != nil {
		return fmt.Errorf("auditd: index change: %w", err)
	}
	return nil
}
