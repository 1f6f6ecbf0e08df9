package app

import (
	"lecture-quiz-service/internal/domain"
)

// ComputeSessionReport aggregates a session's quizzes and answers into the
// session-wide report. Pure: same inputs, same report. Late answers are
// counted separately and excluded from totals, distribution and accuracy.
func ComputeSessionReport(session domain.Session, quizzes []domain.Quiz, participants []domain.Participant, answers []domain.Answer) domain.SessionReport {
	byQuiz := make(map[string][]domain.Answer, len(quizzes))
	for _, a := range answers {
		byQuiz[a.QuizID] = append(byQuiz[a.QuizID], a)
	}

	report := domain.SessionReport{
		SessionID:         session.ID,
		Title:             session.Title,
		TotalQuizzes:      len(quizzes),
		TotalParticipants: len(participants),
		Quizzes:           make([]domain.QuizStats, 0, len(quizzes)),
	}

	totalOnTime := 0
	for _, quiz := range quizzes {
		stats := quizStats(quiz, byQuiz[quiz.ID])
		totalOnTime += stats.Total
		report.Quizzes = append(report.Quizzes, stats)
	}
	report.TotalAnswers = totalOnTime

	if denom := len(quizzes) * len(participants); denom > 0 {
		report.ParticipationRate = float64(totalOnTime) / float64(denom)
	}

	if session.EndedAt != nil {
		minutes := int(session.EndedAt.Sub(session.CreatedAt).Minutes())
		report.DurationMinutes = &minutes
	}

	report.Signal, report.MostProblematic = problemSignal(report.Quizzes)
	return report
}

func quizStats(quiz domain.Quiz, answers []domain.Answer) domain.QuizStats {
	stats := domain.QuizStats{
		QuizID:       quiz.ID,
		Question:     quiz.Question,
		Distribution: make(map[string]int, len(domain.OptionLabels)),
		CreatedAt:    quiz.CreatedAt,
	}
	for _, label := range domain.OptionLabels {
		stats.Distribution[label] = 0
	}
	for _, a := range answers {
		if a.Late {
			stats.LateAnswers++
			continue
		}
		stats.Total++
		stats.Distribution[a.Selected]++
		if a.Selected == quiz.CorrectAnswer {
			stats.Correct++
		}
	}
	if stats.Total > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(stats.Total)
	}
	return stats
}

// problemSignal picks the most problematic quiz: lowest accuracy among
// quizzes with at least one on-time answer and accuracy below 100%, earliest
// created on ties. The three outcomes are mutually exclusive: no answered
// quizzes at all, all answered quizzes perfect, or a problem quiz found.
func problemSignal(all []domain.QuizStats) (string, *domain.QuizStats) {
	anyAnswered := false
	var worst *domain.QuizStats
	for i := range all {
		stats := &all[i]
		if stats.Total == 0 {
			continue
		}
		anyAnswered = true
		if stats.Accuracy >= 1 {
			continue
		}
		// Strict less-than keeps the earliest-created quiz on ties, since
		// quizzes arrive in creation order.
		if worst == nil || stats.Accuracy < worst.Accuracy {
			worst = stats
		}
	}
	switch {
	case !anyAnswered:
		return domain.SignalNoData, nil
	case worst == nil:
		return domain.SignalPerfect, nil
	default:
		out := *worst
		return domain.SignalProblem, &out
	}
}

// ComputeParticipantReport classifies every quiz of the session as correct,
// incorrect or unanswered for one participant. Accuracy is over answered
// quizzes only; a participant who answered 2 of 10 and got both right scores
// 1.0, not 0.2. Late answers count as unanswered.
func ComputeParticipantReport(session domain.Session, participant domain.Participant, quizzes []domain.Quiz, answers []domain.Answer) domain.ParticipantReport {
	own := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		if a.ParticipantID == participant.ID && !a.Late {
			own[a.QuizID] = a
		}
	}

	report := domain.ParticipantReport{
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		DisplayName:   participant.DisplayName,
		Results:       make([]domain.ParticipantResult, 0, len(quizzes)),
	}

	for _, quiz := range quizzes {
		result := domain.ParticipantResult{
			QuizID:        quiz.ID,
			Question:      quiz.Question,
			CorrectAnswer: quiz.CorrectAnswer,
			Result:        domain.ResultUnanswered,
		}
		if answer, ok := own[quiz.ID]; ok {
			result.Selected = answer.Selected
			report.Answered++
			if answer.Selected == quiz.CorrectAnswer {
				result.Result = domain.ResultCorrect
				report.Correct++
			} else {
				result.Result = domain.ResultIncorrect
			}
		}
		report.Results = append(report.Results, result)
	}

	if report.Answered > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Answered)
	}
	return report
}
