package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/xyths/hs"
	"github.com/xyths/hs/broadcast"
	"github.com/xyths/otrace/types"
	"go.uber.org/zap"
)

// Notifier tells operators about orders that need manual handling.
type Notifier interface {
	Notify(o *types.Order, e types.Exception)
}

type Sender interface {
	SendText(msg string) error
}

// Robots sends to every configured chat robot.
type Robots struct {
	Sugar  *zap.SugaredLogger
	labels []string
	robots []Sender
}

func New(confs []hs.BroadcastConf, labels []string, sugar *zap.SugaredLogger) *Robots {
	r := &Robots{Sugar: sugar, labels: labels}
	for _, conf := range confs {
		r.robots = append(r.robots, broadcast.New(conf))
	}
	return r
}

func NewWithSenders(senders []Sender, labels []string, sugar *zap.SugaredLogger) *Robots {
	return &Robots{Sugar: sugar, labels: labels, robots: senders}
}

var beijing = time.FixedZone("Beijing Time", int((8 * time.Hour).Seconds()))

func Format(labels []string, o *types.Order, e types.Exception, now time.Time) string {
	timeStr := now.In(beijing).Format("2006-01-02 15:04:05")
	head := timeStr
	if len(labels) > 0 {
		head = fmt.Sprintf("%s [%s]", timeStr, strings.Join(labels, "] ["))
	}
	return fmt.Sprintf(`%s
[%s] [%s] order %s (%s)
%s: %s
%s`, head, o.Site, o.Symbol, o.Id, o.OuterId, e.Name, e.Alias, e.Message)
}

func (r *Robots) Notify(o *types.Order, e types.Exception) {
	msg := Format(r.labels, o, e, time.Now())
	for _, robot := range r.robots {
		if err := robot.SendText(msg); err != nil {
			r.Sugar.Infof("broadcast error: %s", err)
		}
	}
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(o *types.Order, e types.Exception) {}
