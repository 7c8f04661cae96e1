package state

// AgentStatus 定义 Agent 生命周期状态
type AgentStatus string

const (
	AgentInitializing AgentStatus = "initializing"
	AgentReady        AgentStatus = "ready"
	AgentProcessing   AgentStatus = "processing"
	AgentPaused       AgentStatus = "paused"
	AgentCompleted    AgentStatus = "completed"
	AgentFailed       AgentStatus = "failed"
)

// agentTransitions 定义合法的 Agent 状态转换
var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentInitializing: {AgentReady, AgentFailed},
	AgentReady:        {AgentProcessing, AgentPaused, AgentFailed},
	AgentProcessing:   {AgentReady, AgentPaused, AgentCompleted, AgentFailed}, // Support retry after interruption
	AgentPaused:       {AgentProcessing, AgentCompleted, AgentFailed},
	AgentCompleted:    {},
	AgentFailed:       {},
}

// ResearchStatus 定义研究任务状态
type ResearchStatus string

const (
	ResearchPending    ResearchStatus = "pending"
	ResearchInProgress ResearchStatus = "in_progress"
	ResearchVerifying  ResearchStatus = "verifying"
	ResearchCompleted  ResearchStatus = "completed"
	ResearchFailed     ResearchStatus = "failed"
)

var researchTransitions = map[ResearchStatus][]ResearchStatus{
	ResearchPending:    {ResearchInProgress, ResearchFailed},
	ResearchInProgress: {ResearchVerifying, ResearchCompleted, ResearchFailed},
	ResearchVerifying:  {ResearchInProgress, ResearchCompleted, ResearchFailed}, // 评审驳回后回到 InProgress 继续修订
	ResearchCompleted:  {},
	ResearchFailed:     {},
}

// SupervisionStatus 定义监督循环状态
type SupervisionStatus string

const (
	SupervisionPending              SupervisionStatus = "pending"
	SupervisionInProgress           SupervisionStatus = "in_progress"
	SupervisionQualityCheckFailed   SupervisionStatus = "quality_check_failed"
	SupervisionRedTeamReview        SupervisionStatus = "red_team_review"
	SupervisionApproved             SupervisionStatus = "approved"
	SupervisionRejectedForRevision  SupervisionStatus = "rejected_for_revision"
	SupervisionCompleted            SupervisionStatus = "completed"
	SupervisionFailed               SupervisionStatus = "failed"
)

// supervisionTransitions 构成一个 DAG：一旦进入 InProgress 便不再回到 Pending，
// Completed / Failed 为吸收态。预算耗尽或停滞时由 InProgress 直接收敛到 Completed。
var supervisionTransitions = map[SupervisionStatus][]SupervisionStatus{
	SupervisionPending:             {SupervisionInProgress, SupervisionFailed},
	SupervisionInProgress:          {SupervisionQualityCheckFailed, SupervisionRedTeamReview, SupervisionCompleted, SupervisionFailed},
	SupervisionQualityCheckFailed:  {SupervisionInProgress, SupervisionCompleted, SupervisionFailed},
	SupervisionRedTeamReview:       {SupervisionRejectedForRevision, SupervisionApproved, SupervisionFailed},
	SupervisionRejectedForRevision: {SupervisionInProgress, SupervisionCompleted, SupervisionFailed},
	SupervisionApproved:            {SupervisionCompleted},
	SupervisionCompleted:           {},
	SupervisionFailed:              {},
}

// CanTransitionAgent 检查 Agent 状态转换是否合法
func CanTransitionAgent(from, to AgentStatus) bool {
	for _, s := range agentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionResearch 检查研究状态转换是否合法
func CanTransitionResearch(from, to ResearchStatus) bool {
	for _, s := range researchTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionSupervision 检查监督状态转换是否合法
func CanTransitionSupervision(from, to SupervisionStatus) bool {
	for _, s := range supervisionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalSupervision 判断监督状态是否为终态
func IsTerminalSupervision(s SupervisionStatus) bool {
	return s == SupervisionCompleted || s == SupervisionFailed
}

// IsTerminalResearch 判断研究状态是否为终态
func IsTerminalResearch(s ResearchStatus) bool {
	return s == ResearchCompleted || s == ResearchFailed
}

func validAgentStatus(s AgentStatus) bool {
	_, ok := agentTransitions[s]
	return ok
}

func validResearchStatus(s ResearchStatus) bool {
	_, ok := researchTransitions[s]
	return ok
}

func validSupervisionStatus(s SupervisionStatus) bool {
	_, ok := supervisionTransitions[s]
	return ok
}
