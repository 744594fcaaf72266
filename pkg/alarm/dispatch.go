package alarm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"algoedge.xyz/alarm-relay-service/pkg/common"
)

// Forward-reason vocabulary. These strings are part of the reporting
// contract; admin queries and tests match on them verbatim.
const (
	ReasonDeviceDisabled  = "device disabled"
	ReasonChannelDisabled = "channel disabled"
	ReasonOutOfWindow     = "out of window"
	ReasonNoWebhook       = "no usable webhook"
	ReasonSuppressed      = "suppressed (duplicate)"
	ReasonEcho            = "echo (not forwarded)"
)

// Outcome is the aggregated result of one event's webhook fan-out.
type Outcome struct {
	Forwarded bool
	Reason    string
}

// GateReason joins the failed gating conditions into the stored reason.
func GateReason(deviceEnabled, channelEnabled, timeOK bool) string {
	var reasons []string
	if !deviceEnabled {
		reasons = append(reasons, ReasonDeviceDisabled)
	}
	if !channelEnabled {
		reasons = append(reasons, ReasonChannelDisabled)
	}
	if !timeOK {
		reasons = append(reasons, ReasonOutOfWindow)
	}
	if len(reasons) == 0 {
		return "unknown"
	}
	return strings.Join(reasons, ", ")
}

// dispatch fans one rendered notification out to every target, each in its
// own goroutine with a join before aggregation. A dead target never stops
// the rest of the loop and never fails the event.
func (a *Alarm) dispatch(ctx context.Context, targetIDs []uint, title, text string) Outcome {
	logger := common.GetLoggerWith(
		common.LoggerNameAlarmCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryDispatch),
	)

	if len(targetIDs) == 0 {
		return Outcome{Forwarded: false, Reason: ReasonNoWebhook}
	}

	errs := make([]error, len(targetIDs))
	var wg sync.WaitGroup
	for i, wid := range targetIDs {
		wg.Add(1)
		go func(i int, wid uint) {
			defer wg.Done()
			sender, ok := a.Senders.Resolve(wid)
			if !ok {
				errs[i] = fmt.Errorf("wid=%d disabled or missing", wid)
				return
			}
			if err := sender.SendMarkdown(ctx, title, text, a.Cfg.AtUserIDs, a.Cfg.AtMobiles); err != nil {
				errs[i] = fmt.Errorf("wid=%d: %w", wid, err)
			}
		}(i, wid)
	}
	wg.Wait()

	succ := 0
	var failures []string
	for _, err := range errs {
		if err == nil {
			succ++
		} else {
			failures = append(failures, err.Error())
		}
	}

	if succ > 0 {
		logger.Info("Dispatched notification",
			zap.Int("succeeded", succ),
			zap.Int("total", len(targetIDs)))
		return Outcome{
			Forwarded: true,
			Reason:    fmt.Sprintf("forwarded (%d/%d)", succ, len(targetIDs)),
		}
	}

	logger.Warn("All webhook targets failed", zap.Strings("errors", failures))
	if len(failures) > 2 {
		failures = failures[:2]
	}
	return Outcome{
		Forwarded: false,
		Reason:    "all failed: " + strings.Join(failures, "; "),
	}
}
