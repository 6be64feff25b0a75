// Package modeltest provides data model fixtures shared by package tests.
package modeltest

import "query-engine/internal/models"

// BlogSchema declares users, posts, tags, profiles and a compound-keyed
// account/invoice pair.
//
//	User 1--n Post        (author_id on post)
//	User 1--1 Profile     (user_id on profile)
//	Post n--m Tag         (join table _PostToTag)
//	Account 1--n Invoice  (account_tenant, account_code on invoice)
func BlogSchema() models.Schema {
	return models.Schema{
		Models: []models.ModelTemplate{
			{
				Name: "User", DBName: "user",
				Fields: []models.ScalarFieldTemplate{
					{Name: "id", Type: models.TypeInt, IsID: true},
					{Name: "email", Type: models.TypeString, IsRequired: true, IsUnique: true},
					{Name: "name", Type: models.TypeString},
				},
			},
			{
				Name: "Post", DBName: "post",
				Fields: []models.ScalarFieldTemplate{
					{Name: "id", Type: models.TypeInt, IsID: true},
					{Name: "title", Type: models.TypeString, IsRequired: true},
					{Name: "authorId", DBName: "author_id", Type: models.TypeInt},
				},
			},
			{
				Name: "Tag", DBName: "tag",
				Fields: []models.ScalarFieldTemplate{
					{Name: "id", Type: models.TypeInt, IsID: true},
					{Name: "name", Type: models.TypeString, IsUnique: true},
				},
			},
			{
				Name: "Profile", DBName: "profile",
				Fields: []models.ScalarFieldTemplate{
					{Name: "id", Type: models.TypeInt, IsID: true},
					{Name: "bio", Type: models.TypeString},
					{Name: "userId", DBName: "user_id", Type: models.TypeInt, IsUnique: true},
				},
			},
			{
				Name: "Account", DBName: "account",
				Fields: []models.ScalarFieldTemplate{
					{Name: "tenant", Type: models.TypeString},
					{Name: "code", Type: models.TypeString},
					{Name: "label", Type: models.TypeString},
				},
				PrimaryKey: []string{"tenant", "code"},
			},
			{
				Name: "Invoice", DBName: "invoice",
				Fields: []models.ScalarFieldTemplate{
					{Name: "id", Type: models.TypeInt, IsID: true},
					{Name: "total", Type: models.TypeDecimal},
					{Name: "accountTenant", DBName: "account_tenant", Type: models.TypeString},
					{Name: "accountCode", DBName: "account_code", Type: models.TypeString},
				},
			},
		},
		Relations: []models.RelationTemplate{
			{
				Name:   "PostToUser",
				ModelA: "Post", FieldA: "author",
				ModelB: "User", FieldB: "posts", FieldBIsList: true,
				Inline:             models.SideA,
				ReferencingColumns: []string{"author_id"},
			},
			{
				Name:   "ProfileToUser",
				ModelA: "Profile", FieldA: "user", FieldARequired: true,
				ModelB: "User", FieldB: "profile",
				Inline:             models.SideA,
				ReferencingColumns: []string{"user_id"},
			},
			{
				Name:   "PostToTag",
				ModelA: "Post", FieldA: "tags", FieldAIsList: true,
				ModelB: "Tag", FieldB: "posts", FieldBIsList: true,
				JoinTable:    "_PostToTag",
				JoinColumnsA: []string{"A"},
				JoinColumnsB: []string{"B"},
			},
			{
				Name:   "AccountToInvoice",
				ModelA: "Account", FieldA: "invoices", FieldAIsList: true,
				ModelB: "Invoice", FieldB: "account",
				Inline:             models.SideB,
				ReferencingColumns: []string{"account_tenant", "account_code"},
			},
		},
	}
}

// Blog builds BlogSchema and panics on error.
func Blog() *models.InternalDataModel {
	dm, err := models.Build(BlogSchema())
	if err != nil {
		panic(err)
	}
	return dm
}

// MustModel resolves a model by name and panics when it is missing.
func MustModel(dm *models.InternalDataModel, name string) *models.Model {
	m, err := dm.FindModel(name)
	if err != nil {
		panic(err)
	}
	return m
}

// MustRelationField resolves model.field and panics when it is missing.
func MustRelationField(dm *models.InternalDataModel, model, field string) *models.RelationField {
	rf, err := MustModel(dm, model).FindRelationField(field)
	if err != nil {
		panic(err)
	}
	return rf
}
