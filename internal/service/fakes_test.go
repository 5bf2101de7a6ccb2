package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/progression"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/repository"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/session"

	"gorm.io/gorm"
)

/* ---------------- groups ---------------- */

type memGroups struct {
	mu      sync.Mutex
	groups  map[string]*model.StudyGroup
	members map[string][]model.GroupMember
}

func newMemGroups() *memGroups {
	return &memGroups{groups: map[string]*model.StudyGroup{}, members: map[string][]model.GroupMember{}}
}

func (m *memGroups) addGroup(id string, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &model.StudyGroup{UUIDBase: model.UUIDBase{ID: id}, Name: id}
	if parent != "" {
		g.ParentID = &parent
	}
	m.groups[id] = g
}

func (m *memGroups) addMember(groupID, userID string, role model.GroupRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[groupID] = append(m.members[groupID], model.GroupMember{GroupID: groupID, UserID: userID, Role: role})
}

func (m *memGroups) find(groupID, userID string) *model.GroupMember {
	for i := range m.members[groupID] {
		if m.members[groupID][i].UserID == userID {
			return &m.members[groupID][i]
		}
	}
	return nil
}

func (m *memGroups) MemberCount(_ context.Context, groupID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mem := range m.members[groupID] {
		if mem.Active() {
			n++
		}
	}
	return n, nil
}

func (m *memGroups) GroupsSeenBy(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for gid, list := range m.members {
		for _, mem := range list {
			if mem.UserID == userID {
				out = append(out, gid)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memGroups) Subgroups(_ context.Context, parentID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, g := range m.groups {
		if g.ParentID != nil && *g.ParentID == parentID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memGroups) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := m.find(groupID, userID)
	return mem != nil && mem.Active(), nil
}

func (m *memGroups) RoleOf(_ context.Context, groupID, userID string) (model.GroupRole, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := m.find(groupID, userID)
	if mem == nil || !mem.Active() {
		return "", false, nil
	}
	return mem.Role, true, nil
}

func (m *memGroups) Create(_ context.Context, group *model.StudyGroup) error {
	if group.ID == "" {
		group.ID = model.GenerateUUID()
	}
	m.mu.Lock()
	m.groups[group.ID] = group
	m.mu.Unlock()
	m.addMember(group.ID, group.OwnerID, model.GroupRoleAdmin)
	return nil
}

func (m *memGroups) FindByID(_ context.Context, id string) (*model.StudyGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return g, nil
}

func (m *memGroups) Members(_ context.Context, groupID string) ([]model.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GroupMember
	for _, mem := range m.members[groupID] {
		if mem.Active() {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memGroups) Join(_ context.Context, groupID, userID string) error {
	m.mu.Lock()
	if mem := m.find(groupID, userID); mem != nil {
		mem.LeftAt = nil
		mem.Role = model.GroupRoleMember
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	m.addMember(groupID, userID, model.GroupRoleMember)
	return nil
}

func (m *memGroups) SetRole(_ context.Context, groupID, userID string, role model.GroupRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := m.find(groupID, userID)
	if mem == nil {
		return gorm.ErrRecordNotFound
	}
	mem.Role = role
	return nil
}

func (m *memGroups) Leave(_ context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := m.find(groupID, userID)
	if mem == nil {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	mem.LeftAt = &now
	return nil
}

/* ---------------- messages and questions ---------------- */

type memQuestions struct {
	mu        sync.Mutex
	questions map[string]quiz.Question
	order     []string
	votes     map[string]map[string]bool
	flags     map[string]map[string]bool
}

func newMemQuestions() *memQuestions {
	return &memQuestions{
		questions: map[string]quiz.Question{},
		votes:     map[string]map[string]bool{},
		flags:     map[string]map[string]bool{},
	}
}

func (m *memQuestions) put(q quiz.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; !ok {
		m.order = append(m.order, q.ID)
	}
	m.questions[q.ID] = q
}

func (m *memQuestions) MessagesByGroup(_ context.Context, groupID string) ([]selection.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []selection.Message
	for _, id := range m.order {
		q := m.questions[id]
		if q.GroupID != groupID {
			continue
		}
		qq := q
		out = append(out, selection.Message{ID: "m-" + id, GroupID: groupID, Kind: selection.KindQuestion, Question: &qq})
	}
	return out, nil
}

func (m *memQuestions) PostQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	if q.ID == "" {
		q.ID = model.GenerateUUID()
	}
	m.put(q)
	return q, nil
}

func (m *memQuestions) FindByID(_ context.Context, id string) (quiz.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return quiz.Question{}, gorm.ErrRecordNotFound
	}
	return q, nil
}

func (m *memQuestions) ListByGroup(_ context.Context, groupID string, includeArchived bool) ([]quiz.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []quiz.Question
	for _, id := range m.order {
		q := m.questions[id]
		if q.GroupID == groupID && (includeArchived || !q.Archived) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memQuestions) Vote(_ context.Context, questionID, userID string, up bool) (quiz.Question, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok {
		return quiz.Question{}, false, gorm.ErrRecordNotFound
	}
	if m.votes[questionID] == nil {
		m.votes[questionID] = map[string]bool{}
	}
	prev, voted := m.votes[questionID][userID]
	if voted {
		if prev == up {
			return q, false, nil
		}
		if prev {
			q.Upvotes--
		} else {
			q.Downvotes--
		}
	}
	if up {
		q.Upvotes++
	} else {
		q.Downvotes++
	}
	m.votes[questionID][userID] = up
	m.questions[questionID] = q
	return q, !voted, nil
}

func (m *memQuestions) Flag(_ context.Context, questionID, userID, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags[questionID] == nil {
		m.flags[questionID] = map[string]bool{}
	}
	m.flags[questionID][userID] = true
	return len(m.flags[questionID]), nil
}

func (m *memQuestions) Archive(_ context.Context, questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.questions[questionID]
	q.Archived = true
	m.questions[questionID] = q
	return nil
}

func (m *memQuestions) SetImage(_ context.Context, questionID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.questions[questionID]
	q.ImageURL = url
	m.questions[questionID] = q
	return nil
}

/* ---------------- stats, badges, results ---------------- */

type memStats struct {
	mu      sync.Mutex
	attempt map[string]map[string]quiz.UserQuestionStat
	metrics map[string]quiz.UserStats
}

func newMemStats() *memStats {
	return &memStats{attempt: map[string]map[string]quiz.UserQuestionStat{}, metrics: map[string]quiz.UserStats{}}
}

func (m *memStats) StatsForUser(_ context.Context, userID string) (map[string]quiz.UserQuestionStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]quiz.UserQuestionStat{}
	for k, v := range m.attempt[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *memStats) recordAttempts(userID string, outcomes map[string]bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt[userID] == nil {
		m.attempt[userID] = map[string]quiz.UserQuestionStat{}
	}
	for qid, ok := range outcomes {
		st := m.attempt[userID][qid]
		st.UserID, st.QuestionID, st.LastAttemptedAt = userID, qid, at
		if ok {
			st.CorrectAttempts++
		} else {
			st.IncorrectAttempts++
		}
		m.attempt[userID][qid] = st
	}
}

func (m *memStats) Metrics(_ context.Context, userID string) (quiz.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics[userID].Clone(), nil
}

func (m *memStats) SaveMetrics(_ context.Context, userID string, stats quiz.UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics[userID] == nil {
		m.metrics[userID] = quiz.UserStats{}
	}
	for k, v := range stats {
		if v > m.metrics[userID][k] {
			m.metrics[userID][k] = v
		}
	}
	return nil
}

type memBadges struct {
	mu     sync.Mutex
	earned map[string]progression.Earned
	awards map[string][]progression.Award
}

func newMemBadges() *memBadges {
	return &memBadges{earned: map[string]progression.Earned{}, awards: map[string][]progression.Award{}}
}

func (m *memBadges) Earned(_ context.Context, userID string) (progression.Earned, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.earned[userID].Clone(), nil
}

func (m *memBadges) Award(_ context.Context, userID string, awards []progression.Award, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.earned[userID] == nil {
		m.earned[userID] = progression.Earned{}
	}
	for _, a := range awards {
		if a.Level > m.earned[userID][a.DefinitionKey] {
			m.earned[userID][a.DefinitionKey] = a.Level
		}
		m.awards[userID] = append(m.awards[userID], a)
	}
	return nil
}

func (m *memBadges) List(_ context.Context, userID string, _ []quiz.BadgeDefinition) ([]quiz.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []quiz.Badge
	for _, a := range m.awards[userID] {
		out = append(out, quiz.Badge{UserID: userID, DefinitionKey: a.DefinitionKey, Name: a.Name, Level: a.Level, Points: a.Points})
	}
	return out, nil
}

// memResults 与 ResultRepository 一致：首次写入时同时累加 stats 中的答题计数
type memResults struct {
	mu      sync.Mutex
	stats   *memStats
	saved   []quiz.SessionResult
	applied map[string]bool
	pending []quiz.SessionResult
	synced  map[string]bool
}

func newMemResults(stats *memStats) *memResults {
	return &memResults{stats: stats, applied: map[string]bool{}, synced: map[string]bool{}}
}

func (m *memResults) SaveResult(_ context.Context, res quiz.SessionResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.saved {
		if r.SessionID == res.SessionID {
			return m.applied[res.SessionID], nil
		}
	}
	m.saved = append(m.saved, res)
	m.stats.recordAttempts(res.UserID, res.Outcomes(), res.SubmittedAt)
	return false, nil
}

func (m *memResults) MarkProgressApplied(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[sessionID] = true
	return nil
}

func (m *memResults) History(_ context.Context, userID string, _ int) ([]quiz.SessionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []quiz.SessionResult
	for _, r := range m.saved {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memResults) EnqueuePending(_ context.Context, res quiz.SessionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, res)
	return nil
}

func (m *memResults) PendingFor(_ context.Context, userID string) ([]quiz.SessionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []quiz.SessionResult
	for _, r := range m.pending {
		if r.UserID == userID && !m.synced[r.SessionID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memResults) MarkSynced(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.synced[id] = true
	}
	return nil
}

func (m *memResults) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func (m *memResults) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

/* ---------------- games, leaderboard, snapshots, notifier ---------------- */

type memGames struct {
	mu    sync.Mutex
	games []game.Game
}

func (m *memGames) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

func (m *memGames) SaveGame(_ context.Context, _ string, g game.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games = append(m.games, g)
	return nil
}

func (m *memGames) RecentGames(_ context.Context, userID string, _ int) ([]model.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GameRecord
	for _, g := range m.games {
		if g.UserID == userID {
			out = append(out, model.GameRecord{UUIDBase: model.UUIDBase{ID: g.ID}, UserID: g.UserID})
		}
	}
	return out, nil
}

type memLeaderboard struct {
	mu     sync.Mutex
	points map[string]int
}

func newMemLeaderboard() *memLeaderboard { return &memLeaderboard{points: map[string]int{}} }

func (m *memLeaderboard) AddPoints(_ context.Context, userID string, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[userID] += points
	return nil
}

func (m *memLeaderboard) Top(_ context.Context, n int) ([]repository.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.LeaderboardEntry
	for id, p := range m.points {
		out = append(out, repository.LeaderboardEntry{UserID: id, Points: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (m *memLeaderboard) RankOf(ctx context.Context, userID string) (repository.LeaderboardEntry, bool, error) {
	all, _ := m.Top(ctx, 1<<20)
	for _, e := range all {
		if e.UserID == userID {
			return e, true, nil
		}
	}
	return repository.LeaderboardEntry{}, false, nil
}

type memSnapshots struct {
	mu    sync.Mutex
	byID  map[string]session.Session
	saves int
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{byID: map[string]session.Session{}} }

func (m *memSnapshots) SaveSnapshot(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	m.saves++
	return nil
}

func (m *memSnapshots) LoadSnapshot(_ context.Context, id string) (session.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok, nil
}

func (m *memSnapshots) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memSnapshots) stored(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]EventMessage
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: map[string][]EventMessage{}}
}

func (n *recordingNotifier) PushToUser(userID string, msg EventMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[userID] = append(n.sent[userID], msg)
}

func (n *recordingNotifier) types(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent[userID] {
		out = append(out, m.Type)
	}
	return out
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*model.User{}} }

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = model.GenerateUUID()
	}
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUsers) FindByIDs(_ context.Context, ids []string) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

/* ---------------- helpers ---------------- */

// approved 返回一道在 members 人小组中通过质量门槛的单选题
func approved(id, groupID string) quiz.Question {
	return quiz.Question{
		ID:               id,
		GroupID:          groupID,
		AuthorID:         "author",
		Type:             quiz.SingleChoice,
		Stem:             "Question " + id,
		Options:          []quiz.Option{{ID: "right", Text: "right"}, {ID: "wrong", Text: "wrong"}},
		CorrectOptionIDs: []string{"right"},
		Upvotes:          5,
	}
}
