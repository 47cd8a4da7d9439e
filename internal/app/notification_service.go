// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"youtrack_notification_bot/internal/domain/channel"
	"youtrack_notification_bot/internal/domain/chat"
	"youtrack_notification_bot/internal/domain/issue"
	"youtrack_notification_bot/internal/domain/schedule"

	"github.com/sirupsen/logrus"
)

// NotificationService runs the scheduled features of every channel and builds
// the digest and stats messages also served on demand by commands.
type NotificationService struct {
	registry  *Registry
	source    issue.Source
	deliverer chat.Deliverer
	formatter *Formatter
	evaluator *schedule.Evaluator
	logger    *logrus.Entry

	// Both maps are only touched during a scan, under the registry lock.
	reported map[string]string    // channel.feature -> raw spec already reported as invalid
	fired    map[string]time.Time // channel.feature -> minute of the last daily/weekly dispatch
}

func NewNotificationService(
	registry *Registry,
	source issue.Source,
	deliverer chat.Deliverer,
	formatter *Formatter,
	evaluator *schedule.Evaluator,
	logger *logrus.Entry,
) *NotificationService {
	return &NotificationService{
		registry:  registry,
		source:    source,
		deliverer: deliverer,
		formatter: formatter,
		evaluator: evaluator,
		logger:    logger,
		reported:  make(map[string]string),
		fired:     make(map[string]time.Time),
	}
}

// ScanChannels evaluates every channel and feature at now, dispatches the due
// ones and persists the registry once at the end. Failures are contained per
// channel and feature. Cancellation of ctx does not abort a scan in progress:
// fetches and deliveries are bounded by their own transport timeouts.
func (s *NotificationService) ScanChannels(ctx context.Context, now time.Time) error {
	ctx = context.WithoutCancel(ctx)
	now = now.Truncate(time.Second)
	return s.registry.Update(ctx, func(tx *Tx) error {
		live := make(map[string]struct{})
		for _, ref := range tx.Channels() {
			for _, feature := range channel.Features {
				raw, ok := tx.FeatureSpec(ref.Key, feature)
				if !ok {
					continue
				}
				live[featureSlot(ref.Key, feature)] = struct{}{}
				s.scanFeature(ctx, tx, ref, feature, raw, now)
			}
		}
		s.forgetStaleSlots(live)

		if err := tx.Flush(); err != nil {
			s.logger.WithError(err).Error("Failed to persist channels after scan")
			return err
		}
		return nil
	})
}

func featureSlot(key string, feature channel.Feature) string {
	return key + "." + string(feature)
}

// forgetStaleSlots drops diagnostic and dispatch memory for features that are
// no longer configured, so a re-created channel starts fresh.
func (s *NotificationService) forgetStaleSlots(live map[string]struct{}) {
	for slot := range s.reported {
		if _, ok := live[slot]; !ok {
			delete(s.reported, slot)
		}
	}
	for slot := range s.fired {
		if _, ok := live[slot]; !ok {
			delete(s.fired, slot)
		}
	}
}

func (s *NotificationService) scanFeature(ctx context.Context, tx *Tx, ref ChannelRef, feature channel.Feature, raw string, now time.Time) {
	log := s.logger.WithFields(logrus.Fields{
		"channel": ref.Key,
		"feature": feature,
		"spec":    raw,
	})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Feature handler panicked")
		}
	}()

	slot := featureSlot(ref.Key, feature)
	ev, err := s.evaluator.Evaluate(raw, now)
	if err != nil {
		var perr *schedule.ParseError
		if errors.As(err, &perr) {
			perr.Channel, perr.Feature = ref.Key, string(feature)
		}
		log.WithError(err).Warn("Skipping feature with invalid frequency")
		if s.reported[slot] != raw {
			s.reported[slot] = raw
			s.deliver(ctx, ref.Name, invalidFrequencyMessage(raw, err))
		}
		return
	}
	delete(s.reported, slot)

	if !ev.Due {
		return
	}
	if ev.Frequency.Kind != schedule.KindPolling {
		minute := now.Truncate(time.Minute)
		if s.fired[slot].Equal(minute) {
			return
		}
		s.fired[slot] = minute
	}

	log.Debug("Feature due, dispatching")
	switch feature {
	case channel.FeatureTracking:
		s.runTracking(ctx, tx, ref, now)
	case channel.FeatureDigest:
		s.runDigest(ctx, tx, ref)
	case channel.FeatureStats:
		s.runStats(ctx, tx, ref, ev.Window)
	}
}

func invalidFrequencyMessage(raw string, err error) string {
	return fmt.Sprintf("Unable to parse frequency configuration: _%s_.\n"+
		"Expected format: polling, daily <hour:minute> or weekly <day> <hour:minute> (24h format), eg: weekly friday 14:30\n"+
		"Error: %v", raw, err)
}

// runTracking delivers the issues created since the channel's last check, one
// message per issue. The last check only advances when the fetch succeeds.
func (s *NotificationService) runTracking(ctx context.Context, tx *Tx, ref ChannelRef, now time.Time) {
	log := s.logger.WithFields(logrus.Fields{"channel": ref.Key, "feature": channel.FeatureTracking})

	query, err := tx.Query(ref.Key)
	if err != nil {
		log.WithError(err).Debug("Nothing to track")
		return
	}
	lastCheck, ok := tx.LastCheck(ref.Key)
	if !ok {
		log.Warn("No last check recorded, tracking starts now")
		_ = tx.SetLastCheck(ref.Key, now)
		return
	}

	trackingQuery := fmt.Sprintf("%s created: %s .. %s", query,
		lastCheck.Format(channel.TimestampLayout), now.Format(channel.TimestampLayout))
	issues, err := s.source.FetchIssues(ctx, trackingQuery, false)
	if err != nil {
		log.WithError(err).Error("Failed to fetch new issues")
		s.deliver(ctx, ref.Name, fmt.Sprintf("Unable to fetch new tickets: %v", err))
		return
	}

	for _, is := range issues {
		s.deliver(ctx, ref.Name, s.formatter.FormatIssue(is, true, false))
	}
	if err := tx.SetLastCheck(ref.Key, now); err != nil {
		log.WithError(err).Error("Failed to advance last check")
		return
	}
	log.WithField("issues", len(issues)).Info("Tracking run completed")
}

func (s *NotificationService) runDigest(ctx context.Context, tx *Tx, ref ChannelRef) {
	query, err := tx.Query(ref.Key)
	if err != nil {
		return
	}
	s.deliver(ctx, ref.Name, s.DigestMessage(ctx, query))
}

func (s *NotificationService) runStats(ctx context.Context, tx *Tx, ref ChannelRef, period string) {
	query, err := tx.Query(ref.Key)
	if err != nil {
		return
	}
	s.deliver(ctx, ref.Name, s.StatsMessage(ctx, query, period))
}

// DigestMessage lists every unresolved issue matching query.
func (s *NotificationService) DigestMessage(ctx context.Context, query string) string {
	issues, err := s.source.FetchIssues(ctx, "#Unresolved "+query, false)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch digest issues")
		return fmt.Sprintf("Unable to build digest: %v", err)
	}
	return s.formatter.FormatDigest(issues)
}

// StatsMessage renders the stats of query over period.
func (s *NotificationService) StatsMessage(ctx context.Context, query, period string) string {
	report, err := s.Stats(ctx, query, period)
	if err != nil {
		s.logger.WithError(err).WithField("period", period).Error("Failed to compute stats")
		return fmt.Sprintf("Unable to compute stats: %v", err)
	}
	return s.formatter.FormatStats(report)
}

// Stats runs the four stats queries for query over period.
func (s *NotificationService) Stats(ctx context.Context, query, period string) (StatsReport, error) {
	report := StatsReport{Period: period}

	allTimeQuery := "#Unresolved " + query
	allTime, err := s.source.FetchIssues(ctx, allTimeQuery, true)
	if err != nil {
		return StatsReport{}, err
	}
	report.AllTimeUnresolved = QueryCount{Query: allTimeQuery, Count: len(allTime)}

	baseQuery := fmt.Sprintf("%s created: %s", query, period)
	report.Created.Query = baseQuery

	unresolvedQuery := "#Unresolved " + baseQuery
	unresolved, err := s.source.FetchIssues(ctx, unresolvedQuery, false)
	if err != nil {
		return StatsReport{}, err
	}
	report.Unresolved = QueryCount{Query: unresolvedQuery, Count: len(unresolved)}
	report.UnresolvedByTag = CountByTag(unresolved)

	resolvedQuery := "#Resolved " + baseQuery
	resolved, err := s.source.FetchIssues(ctx, resolvedQuery, false)
	if err != nil {
		return StatsReport{}, err
	}
	report.Resolved = QueryCount{Query: resolvedQuery, Count: len(resolved)}

	previousQuery := fmt.Sprintf("#Resolved %s resolved date: %s", query, period)
	previous, err := s.source.FetchIssues(ctx, previousQuery, false)
	if err != nil {
		return StatsReport{}, err
	}
	report.ResolvedPrevious = QueryCount{Query: previousQuery, Count: len(previous)}

	report.Created.Count = report.Unresolved.Count + report.Resolved.Count
	return report, nil
}

func (s *NotificationService) deliver(ctx context.Context, channelName, message string) {
	if err := s.deliverer.Deliver(ctx, channelName, message); err != nil {
		s.logger.WithError(err).WithField("channel", channelName).Error("Failed to deliver message")
	}
}
