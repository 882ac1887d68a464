package user

// Resources a permission can apply to.
type Resource string

const (
	ResourceUser       Resource = "user"
	ResourceCourse     Resource = "course"
	ResourceLesson     Resource = "lesson"
	ResourceProgress   Resource = "progress"
	ResourceAssignment Resource = "assignment"
	ResourceRubric     Resource = "rubric"
	ResourceSubmission Resource = "submission"
	ResourceExpense    Resource = "expense"
)

// Actions a role may perform on a resource.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionGrade   Action = "grade"
	ActionProcess Action = "process"
)

type permission struct {
	resource Resource
	action   Action
}

func perms(resource Resource, actions ...Action) []permission {
	ps := make([]permission, 0, len(actions))
	for _, act := range actions {
		ps = append(ps, permission{resource, act})
	}
	return ps
}

// rolePermissions maps a role prefix to its granted (resource, action) pairs.
// Admin roles are not listed; they are granted everything.
var rolePermissions = buildRolePermissions()

func buildRolePermissions() map[string]map[permission]struct{} {
	grants := map[string][][]permission{
		RoleTeacher: {
			perms(ResourceCourse, ActionView, ActionCreate, ActionEdit, ActionDelete),
			perms(ResourceLesson, ActionView, ActionCreate, ActionEdit, ActionDelete),
			perms(ResourceProgress, ActionView),
			perms(ResourceAssignment, ActionView, ActionCreate, ActionEdit, ActionDelete),
			perms(ResourceRubric, ActionView, ActionCreate, ActionEdit, ActionDelete),
			perms(ResourceSubmission, ActionView, ActionGrade),
		},
		RoleAccountant: {
			perms(ResourceExpense, ActionView, ActionCreate, ActionEdit, ActionDelete, ActionProcess),
		},
		RoleStudent: {
			perms(ResourceCourse, ActionView),
			perms(ResourceLesson, ActionView),
			perms(ResourceProgress, ActionView, ActionEdit),
			perms(ResourceAssignment, ActionView),
			perms(ResourceSubmission, ActionView, ActionCreate, ActionEdit),
		},
	}

	rp := make(map[string]map[permission]struct{}, len(grants))
	for role, permGroups := range grants {
		set := make(map[permission]struct{})
		for _, group := range permGroups {
			for _, p := range group {
				set[p] = struct{}{}
			}
		}
		rp[role] = set
	}
	return rp
}

// Can reports whether usr may perform `action` on `resource`.
// Admins can do everything. Ownership checks (a student touching their own
// submission, say) are enforced by the callers on top of this.
func Can(usr User, resource Resource, action Action) bool {
	if usr.IsAdmin() {
		return true
	}
	p := permission{resource, action}
	for role, set := range rolePermissions {
		if !usr.RoleStartsWith(role) {
			continue
		}
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}
