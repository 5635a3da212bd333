package server

import (
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/logger"
	"github.com/betbot/accelboard/pkg/persistence"
)

const stateID = "board"

// preferences 重启后保留的状态
type preferences struct {
	TopN     int        `persistence:"top_n"`
	LastView *wire.View `persistence:"last_view"`
}

// LoadState 启动预热：恢复条数设置以及上次退出时的看板，返回是否恢复了看板
func (s *Server) LoadState() (bool, error) {
	if s.state == nil {
		return false, nil
	}
	var p preferences
	if err := persistence.LoadFields(&p, stateID, s.state); err != nil {
		return false, err
	}

	board := s.sched.Board()
	if p.LastView != nil {
		v := wire.ToView(*p.LastView)
		if p.TopN > 0 {
			v.TopN = p.TopN
		}
		board.Restore(v)
		logger.Infof("已恢复上次看板: %d 只股票, 图表 %d 个时间点", len(v.Quotes), len(v.Chart.Labels))
	} else if p.TopN > 0 {
		board.SetTopN(p.TopN)
	}
	if p.TopN > 0 {
		logger.Infof("已恢复排行榜条数: %d", board.TopN())
	}
	return p.LastView != nil, nil
}

// RestoreView 用其他来源（如 Redis）的看板预热，保留当前条数设置
func (s *Server) RestoreView(wv wire.View) {
	board := s.sched.Board()
	v := wire.ToView(wv)
	v.TopN = board.TopN()
	board.Restore(v)
	logger.Infof("已从外部快照预热看板: %d 只股票 (seq=%d)", len(v.Quotes), wv.Seq)
}

// SaveState 保存当前条数和看板；失败只记录日志
func (s *Server) SaveState() {
	if s.state == nil {
		return
	}
	v := wire.FromView(s.sched.Board().View())
	p := preferences{TopN: v.TopN, LastView: &v}
	if err := persistence.SaveFields(&p, stateID, s.state); err != nil {
		logger.Warnf("保存看板状态失败: %v", err)
	}
}
