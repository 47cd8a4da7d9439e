// internal/app/command_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"youtrack_notification_bot/internal/domain/channel"
	"youtrack_notification_bot/internal/domain/schedule"

	"github.com/sirupsen/logrus"
)

const (
	MsgNoQuerySet  = "No query defined for this channel, first set one with `/set_query` command"
	MsgQueryExists = "A query already exists for this channel, delete it first."
	MsgNoConfig    = "No configuration set for this channel"
	msgEnableUsage = "You must specify which module you want to enable: tracking, digest, stats\n" +
		"and in which frequency: polling, daily + time, weekly + day + time\n" +
		"eg:\n" +
		"`/enable tracking polling`\n" +
		"`/enable tracking daily 7:30`  (24h format)\n" +
		"`/enable stats weekly friday 16:00` (24h format)\n"
	msgDisableUsage  = "You must specify which module you want to disable: tracking, digest, stats"
	msgStatsUsage    = "Syntax: `/stats <period>` (see youtrack documentation: https://www.jetbrains.com/help/youtrack/server/Search-and-Command-Attributes.html#Date-and-Period-Values )"
	msgSetQueryUsage = "Syntax: `/set_query <youtrack query>`"
)

const helpText = `Youtrack bot commands:
 - set_query [youtrack query]: define a youtrack query for this channel. This query will be polled to check new incoming tickets.
 - show_query: display the previously defined query
 - del_query: delete the query
 - config: display the configuration of this channel
 - stats [youtrack period]: display number of created tickets for given youtrack period (eg: Today, 2023-09-12 .. 2023-09-14, ...)
 - digest: display the list of unresolved issues for the query
 - enable [module: tracking|digest|stats] [frequency: polling|daily|weekly] (optional: day, time)
   eg:
       ` + "`/enable tracking polling`" + `
       ` + "`/enable stats weekly friday 16:00`" + ` (24h format)
 - disable [module: tracking|digest|stats]
`

// CommandService handles the chat commands that configure a channel.
type CommandService struct {
	registry      *Registry
	notifications *NotificationService
	logger        *logrus.Entry
	now           func() time.Time
}

func NewCommandService(registry *Registry, notifications *NotificationService, logger *logrus.Entry) *CommandService {
	return &CommandService{
		registry:      registry,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle runs the command in text for channelName. handled is false when text
// is not a command (first token does not start with '!' or '/').
func (s *CommandService) Handle(ctx context.Context, channelName, text string) (reply string, handled bool) {
	args := ParseArgs(text)
	if len(args) == 0 || len(args[0]) < 2 || (args[0][0] != '!' && args[0][0] != '/') {
		return "", false
	}
	command := strings.ToLower(args[0][1:])
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}

	log := s.logger.WithFields(logrus.Fields{
		"command": command,
		"channel": channel.NormalizeKey(channelName),
	})
	log.Info("Command received")

	switch command {
	case "set_query":
		return s.setQuery(ctx, log, channelName, args[1:]), true
	case "del_query":
		return s.deleteQuery(ctx, log, channelName), true
	case "show_query":
		return s.showQuery(channelName), true
	case "enable":
		return s.enable(ctx, log, channelName, args[1:]), true
	case "disable":
		return s.disable(ctx, log, channelName, args[1:]), true
	case "config":
		return s.config(channelName), true
	case "stats":
		return s.stats(ctx, channelName, args[1:]), true
	case "digest":
		return s.digest(ctx, channelName), true
	default:
		return helpText, true
	}
}

func (s *CommandService) setQuery(ctx context.Context, log *logrus.Entry, channelName string, args []string) string {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return msgSetQueryUsage
	}
	err := s.registry.Update(ctx, func(tx *Tx) error {
		if err := tx.CreateChannel(channelName, query, s.now().Truncate(time.Second)); err != nil {
			return err
		}
		return tx.Flush()
	})
	switch {
	case errors.Is(err, ErrChannelExists):
		return MsgQueryExists
	case err != nil:
		log.WithError(err).Error("Failed to set query")
		return fmt.Sprintf("Unable to save the query: %v", err)
	}
	log.WithField("query", query).Info("Query set")
	return "Query set"
}

func (s *CommandService) deleteQuery(ctx context.Context, log *logrus.Entry, channelName string) string {
	deleted := false
	err := s.registry.Update(ctx, func(tx *Tx) error {
		if deleted = tx.DeleteChannel(channelName); !deleted {
			return nil
		}
		return tx.Flush()
	})
	if err != nil {
		log.WithError(err).Error("Failed to delete query")
		return fmt.Sprintf("Unable to delete the query: %v", err)
	}
	if !deleted {
		return MsgNoQuerySet
	}
	log.Info("Query deleted")
	return "Query deleted"
}

func (s *CommandService) showQuery(channelName string) string {
	var query string
	err := s.registry.View(func(tx *Tx) error {
		var err error
		query, err = tx.Query(channelName)
		return err
	})
	if err != nil {
		return MsgNoQuerySet
	}
	return query
}

func (s *CommandService) enable(ctx context.Context, log *logrus.Entry, channelName string, args []string) string {
	if len(args) < 2 {
		if !s.hasChannel(channelName) {
			return MsgNoQuerySet
		}
		return msgEnableUsage
	}
	feature, ok := channel.ParseFeature(args[0])
	if !ok {
		return msgEnableUsage
	}
	spec := strings.Join(args[1:], " ")
	if _, err := schedule.Parse(spec); err != nil {
		var perr *schedule.ParseError
		if errors.As(err, &perr) {
			return fmt.Sprintf("Invalid frequency _%s_: %s", spec, perr.Reason)
		}
		return msgEnableUsage
	}

	err := s.registry.Update(ctx, func(tx *Tx) error {
		if err := tx.SetFeatureSpec(channelName, feature, spec); err != nil {
			return err
		}
		return tx.Flush()
	})
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return MsgNoQuerySet
	case err != nil:
		log.WithError(err).Error("Failed to enable module")
		return fmt.Sprintf("Unable to enable module: %v", err)
	}
	log.WithFields(logrus.Fields{"feature": feature, "spec": spec}).Info("Module enabled")
	return fmt.Sprintf("Module \"%s\" enabled", feature)
}

func (s *CommandService) disable(ctx context.Context, log *logrus.Entry, channelName string, args []string) string {
	if !s.hasChannel(channelName) {
		return MsgNoQuerySet
	}
	if len(args) < 1 {
		return msgDisableUsage
	}
	feature, ok := channel.ParseFeature(args[0])
	if !ok {
		return msgDisableUsage
	}

	disabled := false
	err := s.registry.Update(ctx, func(tx *Tx) error {
		if disabled = tx.DeleteFeatureSpec(channelName, feature); !disabled {
			return nil
		}
		return tx.Flush()
	})
	if err != nil {
		log.WithError(err).Error("Failed to disable module")
		return fmt.Sprintf("Unable to disable module: %v", err)
	}
	if !disabled {
		return fmt.Sprintf("Module \"%s\" not enabled for \"%s\"", feature, channelName)
	}
	log.WithField("feature", feature).Info("Module disabled")
	return fmt.Sprintf("Module \"%s\" disabled", feature)
}

func (s *CommandService) config(channelName string) string {
	var c *channel.Channel
	_ = s.registry.View(func(tx *Tx) error {
		c, _ = tx.Channel(channelName)
		return nil
	})
	if c == nil {
		return MsgNoConfig
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Youtrack config for _%s_:\n- youtrack query: `%s`", c.Name, c.Query)
	if spec, ok := c.Features[channel.FeatureTracking]; ok {
		fmt.Fprintf(&b, "\n- %s %s", channel.FeatureTracking, spec)
	}
	if !c.LastCheck.IsZero() {
		fmt.Fprintf(&b, "\n- %s %s", channel.SuffixLastCheck, c.LastCheck.Format(channel.TimestampLayout))
	}
	for _, f := range []channel.Feature{channel.FeatureDigest, channel.FeatureStats} {
		if spec, ok := c.Features[f]; ok {
			fmt.Fprintf(&b, "\n- %s %s", f, spec)
		}
	}
	return b.String()
}

func (s *CommandService) stats(ctx context.Context, channelName string, args []string) string {
	query, err := s.query(channelName)
	if err != nil {
		return MsgNoQuerySet
	}
	if len(args) == 0 {
		return msgStatsUsage
	}
	return s.notifications.StatsMessage(ctx, query, strings.Join(args, " "))
}

func (s *CommandService) digest(ctx context.Context, channelName string) string {
	query, err := s.query(channelName)
	if err != nil {
		return MsgNoQuerySet
	}
	return s.notifications.DigestMessage(ctx, query)
}

func (s *CommandService) query(channelName string) (string, error) {
	var query string
	err := s.registry.View(func(tx *Tx) error {
		var err error
		query, err = tx.Query(channelName)
		return err
	})
	return query, err
}

func (s *CommandService) hasChannel(channelName string) bool {
	found := false
	_ = s.registry.View(func(tx *Tx) error {
		found = tx.HasChannel(channelName)
		return nil
	})
	return found
}
