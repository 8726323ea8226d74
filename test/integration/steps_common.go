package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
)

// StepsContext holds state shared between step definitions
type StepsContext struct {
	tc           *TestContext
	serverURL    string
	instance     *ServerInstance
	response     *http.Response
	responseBody []byte
	authToken    string
	download     []byte
	conceptDB    *model.ConceptDB
	vocab        *model.Vocabulary
	projects     map[string]*model.Project
	documents    map[string]model.Document
}

// NewStepsContext creates a new steps context
func NewStepsContext(tc *TestContext) *StepsContext {
	return &StepsContext{
		tc:        tc,
		serverURL: tc.Server.ServerURL,
		projects:  make(map[string]*model.Project),
		documents: make(map[string]model.Document),
	}
}

// RegisterSteps registers all step definitions
func (s *StepsContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Background steps
	sc.Step(`^a trainer server is running$`, s.aTrainerServerIsRunning)
	sc.Step(`^a trainer server with "([^"]*)" set to "([^"]*)" is running$`, s.aTrainerServerWithSettingIsRunning)
	sc.Step(`^a user "([^"]*)" with password "([^"]*)" exists$`, s.aUserExists)
	sc.Step(`^a superuser "([^"]*)" with password "([^"]*)" exists$`, s.aSuperuserExists)
	sc.Step(`^I am logged in as "([^"]*)" with password "([^"]*)"$`, s.iAmLoggedInAs)

	// Authentication steps
	sc.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, s.iLogInAs)

	// Request and response steps
	sc.Step(`^I send a "([^"]*)" request to "([^"]*)"$`, s.iSendARequestTo)
	sc.Step(`^I send a "([^"]*)" request to "([^"]*)" with body:$`, s.iSendARequestWithBody)
	sc.Step(`^the response status should be (\d+)$`, s.theResponseStatusShouldBe)
	sc.Step(`^the response JSON "([^"]*)" should be "([^"]*)"$`, s.theResponseJSONShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)

	// Domain steps
	sc.Step(`^a concept database with concepts:$`, s.aConceptDatabaseWithConcepts)
	sc.Step(`^a project "([^"]*)" over the documents:$`, s.aProjectOverTheDocuments)
	sc.Step(`^"([^"]*)" is a member of project "([^"]*)"$`, s.isAMemberOfProject)
	sc.Step(`^I create the dataset "([^"]*)" with the documents:$`, s.iCreateTheDataset)
	sc.Step(`^I prepare document "([^"]*)" of project "([^"]*)"$`, s.iPrepareDocument)
	sc.Step(`^I submit document "([^"]*)" of project "([^"]*)"$`, s.iSubmitDocument)
	sc.Step(`^document "([^"]*)" of project "([^"]*)" should have (\d+) annotations?$`, s.documentShouldHaveAnnotations)
	sc.Step(`^I download the annotations of project "([^"]*)"$`, s.iDownloadTheAnnotations)
	sc.Step(`^the download should hold (\d+) projects? with (\d+) annotations?$`, s.theDownloadShouldHold)
	sc.Step(`^I upload the downloaded annotations$`, s.iUploadTheDownloadedAnnotations)
	sc.Step(`^a project named "([^"]*)" should exist with (\d+) annotations?$`, s.aProjectNamedShouldExist)
	sc.Step(`^an audit message "([^"]*)" should have been recorded$`, s.anAuditMessageShouldHaveBeenRecorded)

	s.registerTokenSteps(sc)

	sc.After(s.stopInstance)
}

// Background steps

func (s *StepsContext) aTrainerServerIsRunning() error {
	s.serverURL = s.tc.Server.ServerURL
	return nil
}

func (s *StepsContext) aTrainerServerWithSettingIsRunning(name, value string) error {
	cfg := DefaultServerConfig()
	cfg.Env[name] = value
	instance, err := StartServer(s.tc, cfg)
	if err != nil {
		return err
	}
	s.instance = instance
	s.serverURL = instance.ServerURL
	return nil
}

func (s *StepsContext) stopInstance(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
	if s.instance != nil {
		s.instance.Stop()
		s.instance = nil
	}
	return ctx, err
}

func (s *StepsContext) createUser(username, password string, superuser bool) error {
	hash, err := authn.HashPassword([]byte(password))
	if err != nil {
		return err
	}
	user := model.User{Username: username, PasswordHash: hash, IsSuperuser: superuser}
	return s.tc.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "is_superuser"}),
	}).Create(&user).Error
}

func (s *StepsContext) aUserExists(username, password string) error {
	return s.createUser(username, password, false)
}

func (s *StepsContext) aSuperuserExists(username, password string) error {
	return s.createUser(username, password, true)
}

func (s *StepsContext) iAmLoggedInAs(username, password string) error {
	if err := s.iLogInAs(username, password); err != nil {
		return err
	}
	if s.response.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d: %s", s.response.StatusCode, s.responseBody)
	}
	return nil
}

// Authentication steps

func (s *StepsContext) iLogInAs(username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	if err := s.do("POST", "/api/api-token-auth/", "application/json", bytes.NewReader(body)); err != nil {
		return err
	}
	if s.response.StatusCode == http.StatusOK {
		var token struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(s.responseBody, &token); err != nil {
			return err
		}
		s.authToken = token.Token
	}
	return nil
}

// Request and response steps

func (s *StepsContext) do(method, path, contentType string, body io.Reader) error {
	req, err := http.NewRequest(method, s.serverURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.authToken != "" {
		req.Header.Set("Authorization", "Token "+s.authToken)
	}

	s.response, err = s.tc.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	s.responseBody, err = io.ReadAll(s.response.Body)
	_ = s.response.Body.Close()
	return err
}

func (s *StepsContext) doJSON(method, path string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.do(method, path, "application/json", bytes.NewReader(body))
}

// expand replaces {project:name} and {document:name} with their ids
func (s *StepsContext) expand(text string) string {
	for name, p := range s.projects {
		text = strings.ReplaceAll(text, "{project:"+name+"}", strconv.FormatUint(uint64(p.ID), 10))
	}
	for name, d := range s.documents {
		text = strings.ReplaceAll(text, "{document:"+name+"}", strconv.FormatUint(uint64(d.ID), 10))
	}
	return text
}

func (s *StepsContext) iSendARequestTo(method, path string) error {
	return s.do(method, s.expand(path), "", nil)
}

func (s *StepsContext) iSendARequestWithBody(method, path string, body *godog.DocString) error {
	return s.do(method, s.expand(path), "application/json", strings.NewReader(s.expand(body.Content)))
}

func (s *StepsContext) theResponseStatusShouldBe(status int) error {
	if s.response == nil {
		return fmt.Errorf("no response received")
	}
	if s.response.StatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) theResponseJSONShouldBe(key, expected string) error {
	var body map[string]interface{}
	if err := json.Unmarshal(s.responseBody, &body); err != nil {
		return fmt.Errorf("response is not a JSON object: %s", s.responseBody)
	}
	value, ok := body[key]
	if !ok {
		return fmt.Errorf("response has no %q: %s", key, s.responseBody)
	}
	if got := fmt.Sprint(value); got != expected {
		return fmt.Errorf("expected %q to be %q, got %q", key, expected, got)
	}
	return nil
}

func (s *StepsContext) theResponseShouldContain(text string) error {
	if !strings.Contains(string(s.responseBody), text) {
		return fmt.Errorf("expected response to contain %q, got: %s", text, s.responseBody)
	}
	return nil
}

// Domain steps

func (s *StepsContext) aConceptDatabaseWithConcepts(table *godog.Table) error {
	cdb := nlp.NewCDB(nlp.DefaultConfig())
	for _, row := range table.Rows[1:] {
		cui, name, pretty := row.Cells[0].Value, row.Cells[1].Value, row.Cells[2].Value
		cdb.AddName(cui, name, pretty)
	}
	dir := filepath.Join(s.tc.MediaRoot, "integration", uuid.NewString())
	cdbPath := filepath.Join(dir, "cdb.dat")
	if err := cdb.Save(cdbPath); err != nil {
		return err
	}
	vocabPath := filepath.Join(dir, "vocab.dat")
	if err := nlp.NewVocab(nil).Save(vocabPath); err != nil {
		return err
	}

	s.conceptDB = &model.ConceptDB{Name: "integration_cdb", CDBFile: cdbPath, UseForTraining: true}
	if err := s.tc.DB.Create(s.conceptDB).Error; err != nil {
		return err
	}
	s.vocab = &model.Vocabulary{Name: "integration_vocab", VocabFile: vocabPath}
	return s.tc.DB.Create(s.vocab).Error
}

func (s *StepsContext) aProjectOverTheDocuments(name string, table *godog.Table) error {
	if s.conceptDB == nil {
		return fmt.Errorf("a concept database must be created first")
	}
	ds := &model.Dataset{Name: name + " dataset"}
	if err := s.tc.DB.Create(ds).Error; err != nil {
		return err
	}
	for _, row := range table.Rows[1:] {
		doc := model.Document{Name: row.Cells[0].Value, Text: row.Cells[1].Value, DatasetID: ds.ID}
		if err := s.tc.DB.Create(&doc).Error; err != nil {
			return err
		}
		s.documents[doc.Name] = doc
	}

	p := model.NewProject(name, ds.ID)
	p.ConceptDBID = &s.conceptDB.ID
	p.VocabID = &s.vocab.ID
	if err := s.tc.DB.Omit(clause.Associations).Create(p).Error; err != nil {
		return err
	}
	s.projects[name] = p
	return nil
}

func (s *StepsContext) isAMemberOfProject(username, project string) error {
	p, ok := s.projects[project]
	if !ok {
		return fmt.Errorf("unknown project %q", project)
	}
	var user model.User
	if err := s.tc.DB.Where("username = ?", username).First(&user).Error; err != nil {
		return err
	}
	return s.tc.DB.Model(p).Association("Members").Append(&user)
}

func (s *StepsContext) iCreateTheDataset(name string, table *godog.Table) error {
	req := map[string]interface{}{"dataset_name": name}
	var names, texts []string
	for _, row := range table.Rows[1:] {
		names = append(names, row.Cells[0].Value)
		texts = append(texts, row.Cells[1].Value)
	}
	req["dataset"] = map[string][]string{"name": names, "text": texts}
	return s.doJSON("POST", "/api/create-dataset/", req)
}

func (s *StepsContext) lookup(doc, project string) (model.Document, *model.Project, error) {
	p, ok := s.projects[project]
	if !ok {
		return model.Document{}, nil, fmt.Errorf("unknown project %q", project)
	}
	d, ok := s.documents[doc]
	if !ok {
		return model.Document{}, nil, fmt.Errorf("unknown document %q", doc)
	}
	return d, p, nil
}

func (s *StepsContext) iPrepareDocument(doc, project string) error {
	d, p, err := s.lookup(doc, project)
	if err != nil {
		return err
	}
	return s.doJSON("POST", "/api/prepare-documents/", map[string]interface{}{
		"project_id":   p.ID,
		"document_ids": []uint{d.ID},
	})
}

func (s *StepsContext) iSubmitDocument(doc, project string) error {
	d, p, err := s.lookup(doc, project)
	if err != nil {
		return err
	}
	return s.doJSON("POST", "/api/submit-document/", map[string]uint{
		"project_id":  p.ID,
		"document_id": d.ID,
	})
}

func (s *StepsContext) documentShouldHaveAnnotations(doc, project string, expected int) error {
	d, p, err := s.lookup(doc, project)
	if err != nil {
		return err
	}
	var count int64
	if err := s.tc.DB.Model(&model.AnnotatedEntity{}).
		Where("project_id = ? AND document_id = ?", p.ID, d.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count != int64(expected) {
		return fmt.Errorf("expected %d annotations, found %d", expected, count)
	}
	return nil
}

func (s *StepsContext) iDownloadTheAnnotations(project string) error {
	p, ok := s.projects[project]
	if !ok {
		return fmt.Errorf("unknown project %q", project)
	}
	if err := s.do("GET", fmt.Sprintf("/api/download-annos/?project_ids=%d&with_doc_name=1", p.ID), "", nil); err != nil {
		return err
	}
	s.download = s.responseBody
	return nil
}

func (s *StepsContext) theDownloadShouldHold(projects, annotations int) error {
	var exp struct {
		Projects []struct {
			Documents []struct {
				Annotations []json.RawMessage `json:"annotations"`
			} `json:"documents"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(s.download, &exp); err != nil {
		return fmt.Errorf("download is not an annotation export: %w", err)
	}
	if len(exp.Projects) != projects {
		return fmt.Errorf("expected %d projects, got %d", projects, len(exp.Projects))
	}
	n := 0
	for _, p := range exp.Projects {
		for _, d := range p.Documents {
			n += len(d.Annotations)
		}
	}
	if n != annotations {
		return fmt.Errorf("expected %d annotations, got %d", annotations, n)
	}
	return nil
}

func (s *StepsContext) iUploadTheDownloadedAnnotations() error {
	if len(s.download) == 0 {
		return fmt.Errorf("nothing was downloaded")
	}
	return s.do("POST", "/api/upload-annotations/", "application/json", bytes.NewReader(s.download))
}

func (s *StepsContext) aProjectNamedShouldExist(name string, annotations int) error {
	var p model.Project
	if err := s.tc.DB.Where("name = ?", name).Order("id DESC").First(&p).Error; err != nil {
		return fmt.Errorf("project %q not found: %w", name, err)
	}
	var count int64
	if err := s.tc.DB.Model(&model.AnnotatedEntity{}).Where("project_id = ?", p.ID).Count(&count).Error; err != nil {
		return err
	}
	if count != int64(annotations) {
		return fmt.Errorf("expected %d annotations in %q, found %d", annotations, name, count)
	}
	return nil
}

func (s *StepsContext) anAuditMessageShouldHaveBeenRecorded(msgid string) error {
	var count int64
	if err := s.tc.RawDB.QueryRow(`SELECT count(*) FROM messages WHERE msgid = $1`, msgid).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no audit message %q recorded", msgid)
	}
	return nil
}
