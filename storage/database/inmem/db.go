// Package inmemdb provides in-memory Repository implementations backed by
// mutex-guarded maps. It is meant for tests and local development.
package inmemdb

import (
	"sync"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/grading"
	"github.com/trezcool/shule/core/user"
)

type (
	DB struct {
		user    *userTable
		course  *courseTable
		grading *gradingTable
		finance *financeTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		courses      map[string]*course.Course
		modules      map[string]*course.Module
		lessons      map[string]*course.Lesson
		progress     map[string]*course.LessonProgress // key: lessonID + "/" + studentID
		certificates map[string]*course.Certificate    // key: courseID + "/" + studentID
	}

	gradingTable struct {
		sync.RWMutex
		assignments map[string]*grading.Assignment
		rubrics     map[string]*grading.Rubric
		submissions map[string]*grading.Submission
		scores      map[string]*grading.RubricScore // key: criterionID + "/" + submissionID
	}

	financeTable struct {
		sync.RWMutex
		table map[string]*finance.Expense
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			courses:      make(map[string]*course.Course),
			modules:      make(map[string]*course.Module),
			lessons:      make(map[string]*course.Lesson),
			progress:     make(map[string]*course.LessonProgress),
			certificates: make(map[string]*course.Certificate),
		},
		grading: &gradingTable{
			assignments: make(map[string]*grading.Assignment),
			rubrics:     make(map[string]*grading.Rubric),
			submissions: make(map[string]*grading.Submission),
			scores:      make(map[string]*grading.RubricScore),
		},
		finance: &financeTable{table: make(map[string]*finance.Expense)},
	}
	return db, nil
}
