package engine

import (
	"cmp"
	"slices"
)

type Entry struct {
	PlayerID  string
	Name      string
	Animal    string
	Score     int
	Rank      int
	Connected bool
}

type TeamEntry struct {
	Team    string
	Score   int
	Members []string // player ids in join order
	Rank    int
}

// Leaderboard is immutable once built; states share pointers to it.
type Leaderboard struct {
	Mode       Mode
	Individual []Entry
	Teams      []TeamEntry // only in team mode
}

// BuildLeaderboard ranks players by score (desc), ties broken by join order. Ranks are
// dense: equal scores share a rank and the next distinct score gets rank+1.
func BuildLeaderboard(s State) Leaderboard {
	players := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b Player) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.JoinSeq, b.JoinSeq)
	})

	lb := Leaderboard{Mode: s.Mode, Individual: make([]Entry, 0, len(players))}
	rank, prev := 0, 0
	for i, p := range players {
		if i == 0 || p.Score != prev {
			rank++
			prev = p.Score
		}
		lb.Individual = append(lb.Individual, Entry{
			PlayerID:  p.ID,
			Name:      p.Name,
			Animal:    p.Animal,
			Score:     p.Score,
			Rank:      rank,
			Connected: p.Connected,
		})
	}

	if s.Mode == ModeTeam {
		lb.Teams = buildTeams(players)
	}
	return lb
}

// buildTeams groups players by animal. Equal team scores keep the team whose first
// member joined earliest ahead.
func buildTeams(players []Player) []TeamEntry {
	byJoin := slices.Clone(players)
	slices.SortFunc(byJoin, func(a, b Player) int { return cmp.Compare(a.JoinSeq, b.JoinSeq) })

	index := map[string]int{}
	firstSeq := []int{}
	teams := []TeamEntry{}
	for _, p := range byJoin {
		i, ok := index[p.Animal]
		if !ok {
			i = len(teams)
			index[p.Animal] = i
			teams = append(teams, TeamEntry{Team: p.Animal})
			firstSeq = append(firstSeq, p.JoinSeq)
		}
		teams[i].Score += p.Score
		teams[i].Members = append(teams[i].Members, p.ID)
	}

	order := make([]int, len(teams))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(teams[b].Score, teams[a].Score); c != 0 {
			return c
		}
		return cmp.Compare(firstSeq[a], firstSeq[b])
	})

	ranked := make([]TeamEntry, 0, len(teams))
	rank, prev := 0, 0
	for n, i := range order {
		t := teams[i]
		if n == 0 || t.Score != prev {
			rank++
			prev = t.Score
		}
		t.Rank = rank
		ranked = append(ranked, t)
	}
	return ranked
}
