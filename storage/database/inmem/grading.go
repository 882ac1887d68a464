package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/grading"
)

type gradingRepository struct {
	db *gradingTable
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db.grading}
}

func scoreKey(criterionID, submissionID string) string { return criterionID + "/" + submissionID }

func (repo *gradingRepository) CreateAssignment(ctx context.Context, asg grading.Assignment) (grading.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	asg.ID = uuid.New().String()
	repo.db.assignments[asg.ID] = &asg
	return asg, nil
}

func (repo *gradingRepository) GetAssignmentByID(ctx context.Context, id string) (grading.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if asg, ok := repo.db.assignments[id]; ok {
		return *asg, nil
	}
	return grading.Assignment{}, grading.ErrAssignmentNotFound
}

func (repo *gradingRepository) QueryAssignments(ctx context.Context, courseID string) ([]grading.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	asgs := make([]grading.Assignment, 0)
	for _, asg := range repo.db.assignments {
		if asg.CourseID == courseID {
			asgs = append(asgs, *asg)
		}
	}
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].CreatedAt.Before(asgs[j].CreatedAt) })
	return asgs, nil
}

func (repo *gradingRepository) CreateRubric(ctx context.Context, rub grading.Rubric) (grading.Rubric, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rub.ID = uuid.New().String()
	for i := range rub.Criteria {
		rub.Criteria[i].ID = uuid.New().String()
		rub.Criteria[i].RubricID = rub.ID
	}
	repo.db.rubrics[rub.ID] = &rub
	return rub, nil
}

func (repo *gradingRepository) GetRubricByID(ctx context.Context, id string) (grading.Rubric, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rub, ok := repo.db.rubrics[id]; ok {
		return *rub, nil
	}
	return grading.Rubric{}, grading.ErrRubricNotFound
}

func (repo *gradingRepository) SubmissionExists(ctx context.Context, assignmentID, studentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.submissionExists(assignmentID, studentID), nil
}

func (repo *gradingRepository) submissionExists(assignmentID, studentID string) bool {
	for _, sub := range repo.db.submissions {
		if sub.AssignmentID == assignmentID && sub.StudentID == studentID {
			return true
		}
	}
	return false
}

func (repo *gradingRepository) CreateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// (assignment_id, student_id) is unique
	if repo.submissionExists(sub.AssignmentID, sub.StudentID) {
		return grading.Submission{}, grading.ErrSubmissionExists
	}
	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *gradingRepository) GetSubmissionByID(ctx context.Context, id string) (grading.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return *sub, nil
	}
	return grading.Submission{}, grading.ErrSubmissionNotFound
}

func (repo *gradingRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]grading.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]grading.Submission, 0)
	for _, sub := range repo.db.submissions {
		if sub.AssignmentID == assignmentID {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (repo *gradingRepository) UpdateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.submissions[sub.ID]; !ok {
		return grading.Submission{}, grading.ErrSubmissionNotFound
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *gradingRepository) UpsertRubricScore(ctx context.Context, rs grading.RubricScore) (grading.RubricScore, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.scores[scoreKey(rs.CriterionID, rs.SubmissionID)] = &rs
	return rs, nil
}

func (repo *gradingRepository) QueryRubricScores(ctx context.Context, submissionID string) ([]grading.RubricScore, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	scores := make([]grading.RubricScore, 0)
	for _, rs := range repo.db.scores {
		if rs.SubmissionID == submissionID {
			scores = append(scores, *rs)
		}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].CriterionID < scores[j].CriterionID })
	return scores, nil
}
