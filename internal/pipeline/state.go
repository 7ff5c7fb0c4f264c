package pipeline

import (
	"sync"

	"github.com/iabetor/nius/internal/logger"
)

// State 一次运行所处的阶段。
type State int

const (
	// StateIdle 没有运行在进行。
	StateIdle State = iota
	// StateFetching 各源正在并发抓取和解析。
	StateFetching
	// StateMerging 所有源已结束，正在合并、截取和生成输出。
	StateMerging
)

var stateNames = [...]string{
	"Idle",
	"Fetching",
	"Merging",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 线程安全的阶段切换，同时用来拒绝重叠的运行。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建初始为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// SetOnChange 注册阶段变化回调。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前阶段。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换阶段，只接受：
//
//	Idle     → Fetching  （开始运行）
//	Fetching → Merging   （所有源结束）
//	任意     → Idle      （运行结束或出错）
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Debugf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}
	from := sm.current
	sm.current = to
	logger.Debugf("[state] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

func validTransition(from, to State) bool {
	if to == StateIdle {
		return from != StateIdle
	}
	switch from {
	case StateIdle:
		return to == StateFetching
	case StateFetching:
		return to == StateMerging
	}
	return false
}
