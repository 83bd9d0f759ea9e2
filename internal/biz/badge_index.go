package biz

import "time"

// EventBadgeIndex 事件类型到候选徽章的预计算邻接表
type EventBadgeIndex struct {
	byEvent map[EventType][]*BadgeDefinition
}

// PruneContext 候选剪枝所需的上下文
type PruneContext struct {
	At     time.Time // 已转换到业务时区
	Level  int
	Streak int
}

// NewEventBadgeIndex 根据目录中每个徽章的触发事件建立索引
func NewEventBadgeIndex(catalog *BadgeCatalog) *EventBadgeIndex {
	idx := &EventBadgeIndex{byEvent: make(map[EventType][]*BadgeDefinition)}
	for _, def := range catalog.All() {
		seen := make(map[EventType]bool, len(def.Triggers))
		for _, et := range def.Triggers {
			if seen[et] {
				continue
			}
			seen[et] = true
			idx.byEvent[et] = append(idx.byEvent[et], def)
		}
	}
	return idx
}

// Candidates 事件可能解锁的徽章，按上下文剪掉不可能满足的
func (idx *EventBadgeIndex) Candidates(eventType EventType, pc PruneContext) []*BadgeDefinition {
	all := idx.byEvent[eventType]
	out := make([]*BadgeDefinition, 0, len(all))
	for _, def := range all {
		if def.WeekendOnly && !isWeekend(pc.At) {
			continue
		}
		if def.MinLevel > 0 && pc.Level < def.MinLevel {
			continue
		}
		if r, ok := def.Requirement.(StreakLengthRequirement); ok && pc.Streak < r.Days {
			continue
		}
		out = append(out, def)
	}
	return out
}

// Size 索引中某事件的候选总数
func (idx *EventBadgeIndex) Size(eventType EventType) int {
	return len(idx.byEvent[eventType])
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
