package tree_test

import (
	"fmt"

	"github.com/jacentio/canopy/tree"
)

func ExampleBuild() {
	flat := []tree.Record{
		{"deptId": 100, "parentId": 0, "deptName": "Head Office"},
		{"deptId": 101, "parentId": 100, "deptName": "Engineering"},
		{"deptId": 102, "parentId": 100, "deptName": "Sales"},
		{"deptId": 103, "parentId": 101, "deptName": "Platform"},
	}

	var show func(nodes []tree.Record, depth int)
	show = func(nodes []tree.Record, depth int) {
		for _, n := range nodes {
			fmt.Printf("%*s%s\n", depth*2, "", n["deptName"])
			show(n.Children("children"), depth+1)
		}
	}
	show(tree.Build(flat, tree.DeptConfig()), 0)
	// Output:
	// Head Office
	//   Engineering
	//     Platform
	//   Sales
}

func ExampleTransform() {
	menus := []tree.Record{
		{"menuId": 1, "parentId": 0, "menuName": "System", "menuType": "M"},
		{"menuId": 100, "parentId": 1, "menuName": "Users", "menuType": "C"},
		{"menuId": 1001, "parentId": 100, "menuName": "Add user", "menuType": "F"},
	}

	res := tree.Transform(tree.Response{Data: menus}, tree.MenuConfig())

	fmt.Println("rows:", len(res.FlatData))
	fmt.Println("nodes:", tree.Count(res.Tree, ""))
	fmt.Println("keys:", tree.CollectKeys(res.Tree, "menuId"))
	// Output:
	// rows: 3
	// nodes: 2
	// keys: [1 100]
}

func ExampleIndex() {
	idx := tree.NewIndex([]tree.Record{
		{"id": "a", "parentId": ""},
		{"id": "b", "parentId": "a"},
		{"id": "c", "parentId": "a"},
	}, tree.Config{})

	fmt.Println(idx.ChildIDs("a"))
	parent, _ := idx.Parent("c")
	fmt.Println(parent["id"])
	// Output:
	// [b c]
	// a
}
