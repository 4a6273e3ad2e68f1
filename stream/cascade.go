// Package stream handles DynamoDB stream events for the node tables: it
// cascades soft deletes down the hierarchy and reports node changes so
// cached trees and dictionaries can be dropped.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/canopy/store"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Change describes one node write seen on the stream.
type Change struct {
	Event   string
	Kind    string
	NodeRef string

	// Deleted is set when the write soft-deleted the node.
	Deleted bool

	// Image is the newest image of the node (the old one for REMOVE).
	Image map[string]events.DynamoDBAttributeValue
}

// Attr returns the string attribute name of the changed node.
func (c Change) Attr(name string) string {
	return getStringAttr(c.Image, name)
}

// ChangeFunc is called for every node change after any cascade finished.
type ChangeFunc func(ctx context.Context, c Change) error

// Handler processes DynamoDB stream events.
type Handler struct {
	store    *store.Store
	logger   *slog.Logger
	onChange []ChangeFunc
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// OnChange registers fn to be told about node changes.
func (h *Handler) OnChange(fn ChangeFunc) {
	h.onChange = append(h.onChange, fn)
}

// Handle processes a batch of stream records. It is meant to be passed to
// lambda.Start; a returned error makes Lambda retry the batch.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	change := Change{Event: record.EventName, Image: record.Change.NewImage}
	if record.EventName == EventRemove {
		change.Image = record.Change.OldImage
	}
	change.NodeRef = getStringAttr(change.Image, "node_ref")
	change.Kind, _, _ = strings.Cut(change.NodeRef, "#")

	if record.EventName == EventModify {
		oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
		newTTL := getNumberAttr(record.Change.NewImage, "ttl")

		// Only a newly set TTL starts a cascade.
		if oldTTL == 0 && newTTL != 0 {
			change.Deleted = true
			if err := h.cascade(ctx, record.Change.NewImage, newTTL); err != nil {
				return err
			}
		}
	}

	// Relationship and constraint rows carry no node_ref.
	if change.NodeRef == "" {
		return nil
	}
	h.notify(ctx, change)
	return nil
}

// cascade propagates ttl to every child of the node in image, to the node's
// own relationship row and to its uniqueness claims.
func (h *Handler) cascade(ctx context.Context, image map[string]events.DynamoDBAttributeValue, ttl int64) error {
	nodeRef := getStringAttr(image, "node_ref")
	parentRef := getStringAttr(image, "parent_ref")
	uniquePKs := getStringListAttr(image, "_unique_pks")

	h.logger.Info("processing cascade delete",
		"nodeRef", nodeRef,
		"parentRef", parentRef,
		"ttl", ttl,
	)

	// Includes already deleted children so a retried batch converges.
	children, err := h.store.QueryAllChildren(ctx, nodeRef)
	if err != nil {
		return fmt.Errorf("query children: %w", err)
	}

	h.logger.Info("found children to cascade",
		"nodeRef", nodeRef,
		"childCount", len(children),
	)

	// Each child's own stream record continues the cascade one level down.
	for _, child := range children {
		if err := h.store.SetTTLByKey(ctx, child.TableName, child.Key, ttl); err != nil {
			h.logger.Warn("failed to set TTL on child",
				"child", child.Ref,
				"error", err,
			)
		}
	}

	if parentRef != "" {
		if err := h.store.SetRelationshipTTL(ctx, nodeRef, parentRef, ttl); err != nil {
			h.logger.Warn("failed to set relationship TTL",
				"node", nodeRef,
				"parent", parentRef,
				"error", err,
			)
		}
	}

	for _, pk := range uniquePKs {
		if err := h.store.SetUniqueConstraintTTL(ctx, pk, ttl); err != nil {
			h.logger.Warn("failed to set unique constraint TTL",
				"pk", pk,
				"error", err,
			)
		}
	}

	h.logger.Info("cascade delete completed",
		"nodeRef", nodeRef,
		"childrenProcessed", len(children),
		"uniqueConstraints", len(uniquePKs),
	)
	return nil
}

// notify runs the change hooks. A failing hook is logged, not retried: the
// cascade already happened and caches expire on their own.
func (h *Handler) notify(ctx context.Context, c Change) {
	for _, fn := range h.onChange {
		if err := fn(ctx, c); err != nil {
			h.logger.Warn("change hook failed",
				"nodeRef", c.NodeRef,
				"event", c.Event,
				"error", err,
			)
		}
	}
}

func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

func getStringListAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeList {
			var result []string
			for _, item := range v.List() {
				if item.DataType() == events.DataTypeString {
					result = append(result, item.String())
				}
			}
			return result
		}
	}
	return nil
}
